package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

// WaitReady polls the preview's home page until it answers with a non-5xx
// status or timeout elapses. Static-site generators take a while to render
// before they start listening.
func WaitReady(ctx context.Context, binding domain.ServerBinding, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := binding.LocalURL()
	client := &http.Client{Timeout: interval}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < http.StatusInternalServerError {
				return nil
			}
			lastErr = fmt.Errorf("%s answered %s", url, resp.Status)
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return &domain.RuntimeError{Op: "ready", Err: fmt.Errorf("preview not ready after %s: %w", timeout, lastErr)}
		case <-ticker.C:
		}
	}
}
