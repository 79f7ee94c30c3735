package router

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Markup complexity tiers, ordered.
const (
	TierSimple   = "simple"
	TierModerate = "moderate"
	TierComplex  = "complex"
)

// PageHeuristics is the snapshot derived from one probe of a page's markup.
// Snapshots are cached per URL and reused until they expire.
type PageHeuristics struct {
	// ScriptCount is the number of embedded <script> blocks.
	ScriptCount int `json:"script_count"`

	// ContainerCount is the number of structural container elements.
	ContainerCount int `json:"container_count"`

	// VisibleTextLen is the length of text visible inside <body>.
	VisibleTextLen int `json:"visible_text_len"`

	// Framework names the detected front-end framework, or "".
	Framework string `json:"framework,omitempty"`

	// HasHydrationMarkers reports client-hydration state blobs in the markup.
	HasHydrationMarkers bool `json:"has_hydration_markers"`

	// HasInteractiveAttrs reports inline event-handler attributes.
	HasInteractiveAttrs bool `json:"has_interactive_attrs"`

	// NeedsRendering reports SPA-shell signals: near-empty body, empty root
	// containers, noscript warnings demanding JavaScript, or hydration
	// state blobs alongside scripts.
	NeedsRendering bool `json:"needs_rendering"`

	// Complexity is one of the Tier* values, derived from script and
	// container counts.
	Complexity string `json:"complexity"`
}

// containerTags are the structural elements counted for the density signal.
var containerTags = map[string]struct{}{
	"div": {}, "section": {}, "article": {}, "main": {},
	"aside": {}, "nav": {}, "table": {}, "ul": {}, "ol": {},
}

// interactiveAttrs are inline event handlers that suggest the page expects
// script-driven interaction.
var interactiveAttrs = map[string]struct{}{
	"onclick": {}, "onchange": {}, "onsubmit": {}, "oninput": {},
	"onmouseover": {}, "onkeydown": {}, "onkeyup": {},
}

// frameworkLiterals maps framework names to literal markup fingerprints.
var frameworkLiterals = map[string][]string{
	"react":   {"data-reactroot", "__next_data__", "_reactrootcontainer", `<div id="__next"`},
	"vue":     {"__vue__", "v-cloak", "data-server-rendered"},
	"angular": {"ng-version", "ng-app", "<app-root"},
	"svelte":  {"svelte-", "__svelte"},
	"ember":   {"ember-application", "data-ember-"},
}

// frameworkAttrPatterns match framework-generated attribute shapes that have
// no stable literal form (e.g. Vue's scoped style attributes).
var frameworkAttrPatterns = map[string]*regexp.Regexp{
	"vue":   regexp.MustCompile(`^data-v-[0-9a-f]{6,}$`),
	"react": regexp.MustCompile(`^data-react(id|-checksum)$`),
}

// hydrationMarkers are serialized-state blobs emitted by SSR frameworks for
// client-side hydration.
var hydrationMarkers = []string{
	"__nuxt__", "window.__initial_state__", "__apollo_state__",
	"window.__data__", "astro-island", "sveltekit:", "__remixcontext",
}

var reNoscriptWarning = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// emptyRoots are SPA mount points that render empty without JavaScript.
var emptyRoots = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<div id="main"></div>`,
}

// Analyze derives a heuristic snapshot from raw markup. It makes a single
// tokenizer pass for counts and attributes, plus lowercase literal scans for
// framework and hydration fingerprints.
func Analyze(body []byte) PageHeuristics {
	var h PageHeuristics
	lower := strings.ToLower(string(body))

	h.scanTokens(body)
	h.Framework = detectFrameworkLiteral(lower, h.Framework)
	h.HasHydrationMarkers = h.HasHydrationMarkers || containsAny(lower, hydrationMarkers)
	h.Complexity = classifyTier(h.ScriptCount, h.ContainerCount)
	h.NeedsRendering = needsRendering(lower, h)

	return h
}

// scanTokens walks the markup once, counting scripts and containers,
// measuring visible body text, and matching attribute-level fingerprints.
func (h *PageHeuristics) scanTokens(body []byte) {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inBody := false
	skipDepth := 0
	textLen := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			h.VisibleTextLen = textLen
			return

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			tag := string(name)

			switch tag {
			case "body":
				inBody = true
			case "script":
				h.ScriptCount++
				if tt == html.StartTagToken {
					skipDepth++
				}
			case "style", "noscript":
				if tt == html.StartTagToken {
					skipDepth++
				}
			}
			if _, ok := containerTags[tag]; ok {
				h.ContainerCount++
			}

			for hasAttr {
				var key []byte
				key, _, hasAttr = tokenizer.TagAttr()
				attr := strings.ToLower(string(key))
				if _, ok := interactiveAttrs[attr]; ok {
					h.HasInteractiveAttrs = true
				}
				if h.Framework == "" {
					for fw, re := range frameworkAttrPatterns {
						if re.MatchString(attr) {
							h.Framework = fw
						}
					}
				}
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}

		case html.TextToken:
			if inBody && skipDepth == 0 {
				textLen += len(bytes.TrimSpace(tokenizer.Text()))
			}
		}
	}
}

// classifyTier orders markup into three complexity tiers from script and
// container counts.
func classifyTier(scripts, containers int) string {
	switch {
	case scripts > 15 || containers > 150:
		return TierComplex
	case scripts == 0 && containers < 30:
		return TierSimple
	default:
		return TierModerate
	}
}

// needsRendering flags pages whose server markup is not the final content:
// near-empty bodies, empty framework mount points, noscript warnings,
// hydration state waiting on scripts, or script-heavy pages with little text.
func needsRendering(lower string, h PageHeuristics) bool {
	if h.VisibleTextLen < 200 {
		return true
	}
	if containsAny(lower, emptyRoots) {
		return true
	}
	if reNoscriptWarning.MatchString(lower) {
		return true
	}
	if h.HasHydrationMarkers && h.ScriptCount > 0 {
		return true
	}
	if h.ScriptCount > 10 && h.VisibleTextLen < 500 {
		return true
	}
	return false
}

func detectFrameworkLiteral(lower, current string) string {
	if current != "" {
		return current
	}
	for fw, literals := range frameworkLiterals {
		if containsAny(lower, literals) {
			return fw
		}
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
