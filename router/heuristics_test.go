package router

import (
	"strings"
	"testing"
)

func staticPage(paragraphs int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Docs</title></head><body><main>")
	for i := 0; i < paragraphs; i++ {
		b.WriteString("<p>Plain server-rendered documentation text with enough words to count as visible content.</p>")
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func TestAnalyze_StaticPage(t *testing.T) {
	h := Analyze([]byte(staticPage(10)))

	if h.ScriptCount != 0 {
		t.Errorf("expected 0 scripts, got %d", h.ScriptCount)
	}
	if h.Complexity != TierSimple {
		t.Errorf("expected %q complexity, got %q", TierSimple, h.Complexity)
	}
	if h.Framework != "" {
		t.Errorf("expected no framework, got %q", h.Framework)
	}
	if h.NeedsRendering {
		t.Error("static page with ample text should not need rendering")
	}
}

func TestAnalyze_SPAShell(t *testing.T) {
	page := `<html><head><script src="/static/main.js"></script></head>
		<body><div id="root"></div><script>window.__INITIAL_STATE__={}</script></body></html>`
	h := Analyze([]byte(page))

	if h.Framework != "" {
		t.Errorf("empty root and state blob are framework-agnostic, got %q", h.Framework)
	}
	if !h.NeedsRendering {
		t.Error("SPA shell should need rendering")
	}
	if !h.HasHydrationMarkers {
		t.Error("expected hydration markers from __INITIAL_STATE__")
	}
}

func TestAnalyze_HydrationMarkersFlagRendering(t *testing.T) {
	page := `<html><body>` +
		strings.Repeat("<p>Server-rendered text that would otherwise pass as static content.</p>", 20) +
		`<script src="/bundle.js"></script><script>window.__INITIAL_STATE__={"page":1}</script></body></html>`
	h := Analyze([]byte(page))

	if !h.HasHydrationMarkers {
		t.Fatal("expected hydration markers")
	}
	if !h.NeedsRendering {
		t.Error("hydration state next to scripts should flag rendering despite ample text")
	}
}

func TestAnalyze_ReactRootAttribute(t *testing.T) {
	page := `<html><body><div data-reactroot="">` + strings.Repeat("<p>content text here</p>", 30) + `</div></body></html>`
	h := Analyze([]byte(page))

	if h.Framework != "react" {
		t.Errorf("expected react, got %q", h.Framework)
	}
}

func TestAnalyze_NoscriptWarning(t *testing.T) {
	page := `<html><body><noscript>Please enable JavaScript to view this site.</noscript>` +
		strings.Repeat("<p>some filler body text for the counter</p>", 20) + `</body></html>`
	h := Analyze([]byte(page))

	if !h.NeedsRendering {
		t.Error("noscript JavaScript warning should flag rendering")
	}
}

func TestAnalyze_InteractiveAttrs(t *testing.T) {
	page := `<html><body><button onclick="submit()">Go</button>` +
		strings.Repeat("<p>body text to clear the emptiness threshold completely</p>", 20) + `</body></html>`
	h := Analyze([]byte(page))

	if !h.HasInteractiveAttrs {
		t.Error("expected inline handler detection")
	}
}

func TestAnalyze_ScriptContentNotCountedAsText(t *testing.T) {
	page := `<html><body><script>` + strings.Repeat("var x = 1;", 200) + `</script></body></html>`
	h := Analyze([]byte(page))

	if h.VisibleTextLen != 0 {
		t.Errorf("script bodies must not count as visible text, got %d", h.VisibleTextLen)
	}
	if h.ScriptCount != 1 {
		t.Errorf("expected 1 script, got %d", h.ScriptCount)
	}
}

func TestClassifyTier(t *testing.T) {
	cases := []struct {
		scripts, containers int
		want                string
	}{
		{0, 10, TierSimple},
		{0, 29, TierSimple},
		{0, 30, TierModerate},
		{1, 10, TierModerate},
		{16, 10, TierComplex},
		{0, 151, TierComplex},
	}
	for _, tc := range cases {
		if got := classifyTier(tc.scripts, tc.containers); got != tc.want {
			t.Errorf("classifyTier(%d, %d) = %q, want %q",
				tc.scripts, tc.containers, got, tc.want)
		}
	}
}
