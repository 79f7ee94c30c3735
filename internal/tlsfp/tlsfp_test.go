package tlsfp

import (
	"testing"

	tls "github.com/refraction-networking/utls"
)

func TestChromeHello_ALPNForcesHTTP1(t *testing.T) {
	hello := ChromeHello()
	if len(hello.Extensions) == 0 {
		t.Fatal("hello has no extensions")
	}

	found := false
	for _, ext := range hello.Extensions {
		alpn, ok := ext.(*tls.ALPNExtension)
		if !ok {
			continue
		}
		found = true
		if len(alpn.AlpnProtocols) != 1 || alpn.AlpnProtocols[0] != "http/1.1" {
			t.Errorf("ALPN must offer http/1.1 only, got %v", alpn.AlpnProtocols)
		}
	}
	if !found {
		t.Fatal("no ALPN extension in the hello")
	}
}
