package fetcher

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/flowmatic/harvester/models"
)

// extractFields applies the request's CSS selectors to the fetched markup.
// The markup is parsed once; every field runs against the same document.
//
// Value shape per field:
//   - no match        → nil (the scrape still succeeds)
//   - one match       → a bare scalar when one extraction mode is requested,
//     otherwise an object keyed by mode
//   - several matches → an ordered list of the above
func extractFields(req *models.ScrapeRequest, rawHTML string) (map[string]any, []models.SelectorOutcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, nil, fmt.Errorf("fetcher: parse markup: %w", err)
	}

	data := make(map[string]any, len(req.Fields))
	outcomes := make([]models.SelectorOutcome, 0, len(req.Fields))

	for field, selector := range req.Fields {
		sel := doc.Find(selector)
		switch sel.Length() {
		case 0:
			data[field] = nil
		case 1:
			data[field] = extractValue(sel.First(), req)
		default:
			values := make([]any, 0, sel.Length())
			sel.Each(func(_ int, s *goquery.Selection) {
				values = append(values, extractValue(s, req))
			})
			data[field] = values
		}

		outcomes = append(outcomes, models.SelectorOutcome{
			URL:       req.URL,
			Field:     field,
			Selector:  selector,
			MatchType: "css",
			Matched:   sel.Length() > 0,
			TenantID:  req.TenantID,
			UserID:    req.UserID,
		})
	}
	return data, outcomes, nil
}

func extractValue(s *goquery.Selection, req *models.ScrapeRequest) any {
	modes := 0
	if req.ExtractText {
		modes++
	}
	if req.ExtractHTML {
		modes++
	}
	if len(req.ExtractAttrs) > 0 {
		modes++
	}

	if modes == 1 {
		switch {
		case req.ExtractText:
			return strings.TrimSpace(s.Text())
		case req.ExtractHTML:
			return innerHTML(s)
		default:
			return attrValues(s, req.ExtractAttrs)
		}
	}

	value := make(map[string]any, modes)
	if req.ExtractText {
		value["text"] = strings.TrimSpace(s.Text())
	}
	if req.ExtractHTML {
		value["html"] = innerHTML(s)
	}
	if len(req.ExtractAttrs) > 0 {
		value["attrs"] = attrValues(s, req.ExtractAttrs)
	}
	return value
}

func innerHTML(s *goquery.Selection) string {
	h, err := s.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(h)
}

// attrValues reads the requested attributes. A single requested attribute
// collapses to its bare value; absent attributes read as empty strings.
func attrValues(s *goquery.Selection, names []string) any {
	if len(names) == 1 {
		v, _ := s.Attr(names[0])
		return v
	}
	attrs := make(map[string]string, len(names))
	for _, name := range names {
		attrs[name], _ = s.Attr(name)
	}
	return attrs
}
