package prober

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

type HTTPCheck struct {
	client *http.Client
	scheme string
	path   string
}

func NewHTTPStrategy(settings Settings) *HTTPCheck {
	transport := &http.Transport{
		DisableKeepAlives: true,
	}
	return &HTTPCheck{
		client: &http.Client{
			Timeout:   settings.RequestTimeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		scheme: settings.Scheme,
		path:   settings.Path,
	}
}

func (h *HTTPCheck) Check(ctx context.Context, addr string) (Result, error) {
	target := url.URL{Scheme: h.scheme, Host: addr, Path: h.path}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return ResultBad, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return classifyErr(err), fmt.Errorf("request do error: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode/100 == 2:
		return ResultHealthy, nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return ResultNotReady, fmt.Errorf("status code %d", resp.StatusCode)
	}
	return ResultBad, fmt.Errorf("invalid status code %d", resp.StatusCode)
}
