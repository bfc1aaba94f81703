package prober

import (
	"context"
	"fmt"
	"net"
)

type TCPCheck struct {
	dialer net.Dialer
}

func NewTCPStrategy(settings Settings) *TCPCheck {
	return &TCPCheck{dialer: net.Dialer{Timeout: settings.RequestTimeout, KeepAlive: -1}}
}

func (t *TCPCheck) Check(ctx context.Context, addr string) (Result, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyErr(err), fmt.Errorf("dial %s: %w", addr, err)
	}
	_ = conn.Close()
	return ResultHealthy, nil
}
