package prober

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// Result classifies a single health check.
type Result int

const (
	// ResultNotReady covers a workload that is still starting: refused or
	// reset connections, dial timeouts, a 503.
	ResultNotReady Result = iota
	ResultHealthy
	// ResultBad is an answer that will not get better by waiting, such as a
	// malformed exchange or an unexpected status code.
	ResultBad
)

func (r Result) String() string {
	switch r {
	case ResultHealthy:
		return "healthy"
	case ResultBad:
		return "bad"
	}
	return "not-ready"
}

type StrategyName string

const (
	HTTPStrategy StrategyName = "http"
	TCPStrategy  StrategyName = "tcp"
)

// Strategy performs one check against addr (host:port).
type Strategy interface {
	Check(ctx context.Context, addr string) (Result, error)
}

// Settings describes how a slot is probed. The zero value probes
// http://127.0.0.1:<port>/.
type Settings struct {
	Strategy        StrategyName  `yaml:"strategy"`
	Host            string        `yaml:"host"`
	Scheme          string        `yaml:"scheme"`
	Path            string        `yaml:"path"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxBadResponses int           `yaml:"max_bad_responses"`
}

func (s *Settings) FillDefaults() {
	if s.Strategy == "" {
		s.Strategy = HTTPStrategy
	}
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Scheme == "" {
		s.Scheme = "http"
	}
	if s.Path == "" {
		s.Path = "/"
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = time.Second
	}
	if s.MaxBadResponses == 0 {
		s.MaxBadResponses = 3
	}
}

func NewStrategy(settings Settings) (Strategy, error) {
	switch settings.Strategy {
	case HTTPStrategy:
		return NewHTTPStrategy(settings), nil
	case TCPStrategy:
		return NewTCPStrategy(settings), nil
	}
	return nil, fmt.Errorf("unknown probe strategy: %s", settings.Strategy)
}

// classifyErr decides whether a transport error means "try again later".
func classifyErr(err error) Result {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr) && netErr.Timeout():
		return ResultNotReady
	}
	return ResultBad
}
