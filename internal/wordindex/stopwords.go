package wordindex

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// StopWords is a set of words excluded from the index.
type StopWords map[string]struct{}

var defaultStopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and", "any",
	"are", "as", "at", "be", "because", "been", "before", "being", "below", "between", "both",
	"but", "by", "can", "could", "did", "do", "does", "doing", "down", "during", "each", "few",
	"for", "from", "further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "i", "if", "in", "into", "is", "it", "its",
	"itself", "just", "me", "more", "most", "my", "myself", "no", "nor", "not", "now", "of",
	"off", "on", "once", "only", "or", "other", "our", "ours", "ourselves", "out", "over",
	"own", "same", "she", "should", "so", "some", "such", "than", "that", "the", "their",
	"theirs", "them", "themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we", "were", "what",
	"when", "where", "which", "while", "who", "whom", "why", "will", "with", "would", "you",
	"your", "yours", "yourself", "yourselves",
}

// DefaultStopWords returns a fresh copy of the built-in English stop words.
func DefaultStopWords() StopWords {
	return NewStopWords(defaultStopWords)
}

// NewStopWords builds a set from words, lowercased.
func NewStopWords(words []string) StopWords {
	set := make(StopWords, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// LoadStopWords reads one word per line. Blank lines and lines starting with
// '#' are ignored.
func LoadStopWords(path string) (StopWords, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stop-word file: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stop-word file: %w", err)
	}
	return NewStopWords(words), nil
}

// Contains reports whether word is a stop word.
func (s StopWords) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// Indexable reports whether token is long enough and not a stop word.
func (s StopWords) Indexable(token string) bool {
	return utf8.RuneCountInString(token) >= MinTokenLength && !s.Contains(token)
}

var builtin = DefaultStopWords()

// IsIndexable checks token against the built-in stop words.
func IsIndexable(token string) bool {
	return builtin.Indexable(token)
}
