package metadata

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/alvmarrod/web-weaver/internal/storage"
)

// SnippetLength is the maximum snippet length in runes
const SnippetLength = 500

// parseInto fills the text fields of meta from an HTML document.
// Empty values are left nil.
func parseInto(meta *storage.SiteMetadata, body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta.Title = nonEmpty(doc.Find("title").First().Text())
	meta.Description = nonEmpty(metaContent(doc, "description"))
	meta.Keywords = nonEmpty(metaContent(doc, "keywords"))

	if body := doc.Find("body").First(); body.Length() > 0 {
		meta.Snippet = nonEmpty(Snippet(bodyText(body.Get(0)), SnippetLength))
	}
	return nil
}

// metaContent returns the content of the first <meta name=...> whose name
// matches case-insensitively.
func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("name", "")), name) {
			return true
		}
		content = s.AttrOr("content", "")
		return false
	})
	return content
}

// bodyText concatenates the text nodes under n with a space between them,
// skipping script and style contents.
func bodyText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Snippet collapses whitespace runs to single spaces and truncates the
// result to max runes.
func Snippet(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) > max {
		return string(runes[:max])
	}
	return collapsed
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
