package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/flowmatic/harvester/internal/tlsfp"
	"github.com/flowmatic/harvester/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// fetchLightweight retrieves the target via plain HTTP with a Chrome TLS
// fingerprint, optionally through a proxy. Ban-signal statuses (403/429)
// are classified ErrCodeBanned only when a proxy carried the request.
func (o *Orchestrator) fetchLightweight(ctx context.Context, req *models.ScrapeRequest, proxy *models.ProxyRecord) (*fetchResult, *models.ScrapeError) {
	client, err := newFetchClient(proxy)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to build http client", err)
	}
	defer client.CloseIdleConnections()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "failed to build request", err)
	}
	applyHeaders(httpReq, req)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, categorizeError(err, "request failed")
	}
	defer resp.Body.Close()

	if serr := classifyStatus(resp.StatusCode, proxy != nil); serr != nil {
		return nil, serr
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return nil, models.NewScrapeError(models.ErrCodeContentTypeMismatch,
			fmt.Sprintf("expected HTML, got %q", contentType), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, o.cfg.MaxBodyBytes))
	if err != nil {
		return nil, categorizeError(err, "failed to read response body")
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &fetchResult{
		html:        string(body),
		statusCode:  resp.StatusCode,
		contentType: contentType,
		finalURL:    finalURL,
	}, nil
}

// classifyStatus maps an upstream status to a typed error, or nil for
// success. Without a proxy a 429 stays retryable and a 403 is a plain
// client error; neither is a ban signal the pool should hear about.
func classifyStatus(statusCode int, proxied bool) *models.ScrapeError {
	switch {
	case statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests:
		if proxied {
			return models.NewScrapeError(models.ErrCodeBanned, banReason(statusCode), nil)
		}
		if statusCode == http.StatusTooManyRequests {
			return models.NewScrapeError(models.ErrCodeRateLimited,
				fmt.Sprintf("upstream returned %d", statusCode), nil)
		}
		return models.NewScrapeError(models.ErrCodeClientError,
			fmt.Sprintf("upstream returned %d", statusCode), nil)
	case statusCode >= 400 && statusCode < 500:
		return models.NewScrapeError(models.ErrCodeClientError,
			fmt.Sprintf("upstream returned %d", statusCode), nil)
	case statusCode >= 500:
		return models.NewScrapeError(models.ErrCodeNavigation,
			fmt.Sprintf("upstream returned %d", statusCode), nil)
	}
	return nil
}

// applyHeaders sets browser-like defaults, then the request's custom
// headers on top.
func applyHeaders(httpReq *http.Request, req *models.ScrapeRequest) {
	ua := req.UserAgent
	if ua == "" {
		ua = chromeUA
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Cache-Control", "no-cache")

	for k, v := range req.Headers {
		if http.CanonicalHeaderKey(k) == "Host" {
			httpReq.Host = v
			continue
		}
		httpReq.Header.Set(k, v)
	}
}

// newFetchClient builds an HTTP client with a Chrome TLS fingerprint.
// HTTP(S) proxies use the transport's proxy support; SOCKS5 proxies dial
// through golang.org/x/net/proxy.
func newFetchClient(record *models.ProxyRecord) (*http.Client, error) {
	dialContext := (&net.Dialer{Timeout: 10 * time.Second}).DialContext

	transport := &http.Transport{
		ForceAttemptHTTP2: false,
	}

	if record != nil {
		proxyURL, err := url.Parse(record.URL())
		if err != nil {
			return nil, fmt.Errorf("fetcher: parse proxy url: %w", err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5", "socks5h":
			var auth *xproxy.Auth
			if proxyURL.User != nil {
				password, _ := proxyURL.User.Password()
				auth = &xproxy.Auth{User: proxyURL.User.Username(), Password: password}
			}
			dialer, err := xproxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{Timeout: 10 * time.Second})
			if err != nil {
				return nil, fmt.Errorf("fetcher: socks5 dialer: %w", err)
			}
			cd, ok := dialer.(xproxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("fetcher: socks5 dialer does not support contexts")
			}
			dialContext = cd.DialContext
		default:
			return nil, fmt.Errorf("fetcher: unsupported proxy protocol %q", proxyURL.Scheme)
		}
	}

	transport.DialContext = dialContext
	transport.DialTLSContext = tlsfp.DialTLS(dialContext)

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}, nil
}

// isHTMLContent accepts HTML media types and responses that declare no
// content type at all.
func isHTMLContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType := contentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
