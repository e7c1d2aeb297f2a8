// Package health provides a cheap pre-flight reachability check for an
// endpoint's order authority, separate from calibration: an operator can
// check that a broker host is reachable at all before committing to a
// calibrated run. Adapted from the teacher's provider-reachability check.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CheckAuthority issues a lightweight GET against authorityURL (scheme+host,
// as produced by endpoint.ProbeURL) and returns nil only on a 2xx response.
func CheckAuthority(ctx context.Context, authorityURL string) error {
	if authorityURL == "" {
		return fmt.Errorf("no order authority configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorityURL, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("authority unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("authority returned HTTP %d", resp.StatusCode)
	}
	return nil
}
