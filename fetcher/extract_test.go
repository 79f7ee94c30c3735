package fetcher

import (
	"testing"

	"github.com/flowmatic/harvester/models"
)

const productPage = `<html><body>
	<h1 class="title">  Widget Pro  </h1>
	<span class="price">$19.99</span>
	<ul class="tags">
		<li>home</li>
		<li>garden</li>
		<li>tools</li>
	</ul>
	<a id="buy" href="/cart" rel="nofollow">Buy</a>
</body></html>`

func fieldsRequest(fields map[string]string) *models.ScrapeRequest {
	req := &models.ScrapeRequest{URL: "https://shop.example.com/widget", Fields: fields}
	req.Defaults()
	return req
}

func TestExtractFields_SingleMatchBareScalar(t *testing.T) {
	req := fieldsRequest(map[string]string{"title": "h1.title"})

	data, outcomes, err := extractFields(req, productPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, ok := data["title"].(string); !ok || got != "Widget Pro" {
		t.Errorf("expected trimmed bare string %q, got %#v", "Widget Pro", data["title"])
	}
	if len(outcomes) != 1 || !outcomes[0].Matched {
		t.Errorf("expected one hit outcome, got %+v", outcomes)
	}
}

func TestExtractFields_MultipleMatchesOrderedList(t *testing.T) {
	req := fieldsRequest(map[string]string{"tags": "ul.tags li"})

	data, _, err := extractFields(req, productPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list, ok := data["tags"].([]any)
	if !ok {
		t.Fatalf("expected a list, got %#v", data["tags"])
	}
	want := []string{"home", "garden", "tools"}
	if len(list) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(list))
	}
	for i, w := range want {
		if list[i] != w {
			t.Errorf("entry %d: expected %q, got %#v (document order must be preserved)", i, w, list[i])
		}
	}
}

func TestExtractFields_MissIsNullAndReported(t *testing.T) {
	req := fieldsRequest(map[string]string{
		"title":   "h1.title",
		"missing": ".does-not-exist",
	})

	data, outcomes, err := extractFields(req, productPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, present := data["missing"]
	if !present || v != nil {
		t.Errorf("a selector miss must yield an explicit null, got %#v (present=%v)", v, present)
	}

	byField := map[string]bool{}
	for _, o := range outcomes {
		byField[o.Field] = o.Matched
	}
	if byField["title"] != true || byField["missing"] != false {
		t.Errorf("unexpected outcomes: %+v", outcomes)
	}
}

func TestExtractFields_MultipleModesStructuredObject(t *testing.T) {
	req := fieldsRequest(map[string]string{"price": "span.price"})
	req.ExtractHTML = true // Defaults already set ExtractText

	data, _, err := extractFields(req, productPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj, ok := data["price"].(map[string]any)
	if !ok {
		t.Fatalf("expected a structured object with two modes, got %#v", data["price"])
	}
	if obj["text"] != "$19.99" {
		t.Errorf("expected text %q, got %#v", "$19.99", obj["text"])
	}
	if obj["html"] != "$19.99" {
		t.Errorf("expected inner html %q, got %#v", "$19.99", obj["html"])
	}
}

func TestExtractFields_SingleAttrBareValue(t *testing.T) {
	req := &models.ScrapeRequest{
		URL:          "https://shop.example.com/widget",
		Fields:       map[string]string{"link": "a#buy"},
		ExtractAttrs: []string{"href"},
	}
	req.Defaults()

	data, _, err := extractFields(req, productPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["link"] != "/cart" {
		t.Errorf("expected bare attr value %q, got %#v", "/cart", data["link"])
	}
}

func TestExtractFields_MultipleAttrsMap(t *testing.T) {
	req := &models.ScrapeRequest{
		URL:          "https://shop.example.com/widget",
		Fields:       map[string]string{"link": "a#buy"},
		ExtractAttrs: []string{"href", "rel"},
	}
	req.Defaults()

	data, _, err := extractFields(req, productPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	attrs, ok := data["link"].(map[string]string)
	if !ok {
		t.Fatalf("expected an attr map, got %#v", data["link"])
	}
	if attrs["href"] != "/cart" || attrs["rel"] != "nofollow" {
		t.Errorf("unexpected attrs: %#v", attrs)
	}
}
