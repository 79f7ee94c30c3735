package fetcher

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
)

// minArticleLength is the minimum TextContent length (in characters) for
// readability output to be considered valid. Below this threshold we assume
// the algorithm failed to locate the main content and keep the full markup.
const minArticleLength = 50

// markdownConverter is goroutine-safe and reused across requests.
var markdownConverter = newMarkdownConverter()

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// articleContent is the extraction path for requests without field
// selectors: run the Readability algorithm to isolate the main content,
// then render it as Markdown. Every failure falls back a step rather than
// failing the scrape.
func articleContent(pageURL, rawHTML string) string {
	content := rawHTML

	if parsed, err := nurl.Parse(pageURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
		switch {
		case err != nil:
			slog.Warn("readability extraction failed, using full markup",
				"url", pageURL, "error", err)
		case len(strings.TrimSpace(article.TextContent)) < minArticleLength:
			slog.Debug("readability content too short, using full markup",
				"url", pageURL, "length", len(article.TextContent))
		default:
			content = article.Content
		}
	}

	domain := ""
	if parsed, err := nurl.Parse(pageURL); err == nil {
		domain = parsed.Scheme + "://" + parsed.Host
	}

	md, err := markdownConverter.ConvertString(content, converter.WithDomain(domain))
	if err != nil {
		slog.Warn("markdown conversion failed, returning html content",
			"url", pageURL, "error", err)
		return content
	}
	return md
}
