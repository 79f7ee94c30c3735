package router

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/flowmatic/harvester/internal/tlsfp"
)

const probeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// newProbeClient builds the HTTP client used for heuristic probes: a
// Chrome TLS fingerprint, no HTTP/2, and a bounded redirect chain.
func newProbeClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialTLSContext:    tlsfp.DialTLS(dialer.DialContext),
		ForceAttemptHTTP2: false,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// probe fetches the target markup with a bounded timeout for heuristic
// analysis. The body is capped at maxBytes.
func (r *Router) probe(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("router: build probe request: %w", err)
	}
	req.Header.Set("User-Agent", probeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("router: probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("router: probe status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("router: read probe body: %w", err)
	}
	return body, nil
}
