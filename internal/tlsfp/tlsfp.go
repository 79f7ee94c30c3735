// Package tlsfp holds the Chrome TLS fingerprint shared by the heuristic
// probe and the lightweight fetch path.
package tlsfp

import (
	"context"
	"fmt"
	"net"

	tls "github.com/refraction-networking/utls"
)

// chromeHello is a Chrome-like ClientHello with ALPN forced to http/1.1
// only, so the server never negotiates HTTP/2 over the utls connection.
// Computed once at init time and reused for every connection.
var chromeHello tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeHello = spec
}

// ChromeHello exposes the shared ClientHello.
func ChromeHello() *tls.ClientHelloSpec {
	return &chromeHello
}

// DialContextFunc matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialTLS wraps dial with a utls handshake presenting the Chrome
// fingerprint. The returned function is suitable for
// http.Transport.DialTLSContext.
func DialTLS(dial DialContextFunc) DialContextFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		rawConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(addr)
		tlsConn := tls.UClient(rawConn, &tls.Config{ServerName: host}, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(ChromeHello()); err != nil {
			rawConn.Close()
			return nil, fmt.Errorf("tlsfp: apply hello preset: %w", err)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}
