// Package wordindex turns page text into filtered tokens and accumulates word
// frequencies for a crawl.
package wordindex

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// MinTokenLength is the shortest token, in runes, that is indexed.
const MinTokenLength = 3

// StripTags returns the text content of an HTML fragment. Script and style
// bodies are dropped and text nodes are separated by a space so adjacent
// elements never glue words together.
func StripTags(fragment string) string {
	if !strings.ContainsRune(fragment, '<') && !strings.ContainsRune(fragment, '&') {
		return fragment
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail, either way keep what was read
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawText(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawText(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isRawText(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}

// Tokenize strips markup from text and splits what remains into tokens with
// TokenizeText. The output is stable: tokenizing strings.Join(Tokenize(s), " ")
// yields the same tokens.
func Tokenize(text string) []string {
	return TokenizeText(StripTags(text))
}

// TokenizeText lowercases plain text, replaces every rune that is not a
// letter, number or space with a space and splits on whitespace. Angle
// brackets are ordinary punctuation here, so text already taken out of a
// document is never parsed as markup a second time.
func TokenizeText(text string) []string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(text))
	return strings.Fields(text)
}
