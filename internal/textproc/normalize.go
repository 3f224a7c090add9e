// Package textproc turns free-text alert messages into token sequences and
// the numeric feature representations the classifiers consume.
package textproc

import (
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`[a-z][a-z0-9+.\-]*://\S+|www\.\S+`)
	nonWordPattern = regexp.MustCompile(`[^a-z\s]+`)
)

// Normalize lowercases text, drops URLs, replaces everything that is not an
// ASCII letter with whitespace and splits on whitespace runs. Blank input
// yields an empty, non-nil slice.
func Normalize(text string) []string {
	s := strings.ToLower(text)
	s = urlPattern.ReplaceAllString(s, " ")
	s = nonWordPattern.ReplaceAllString(s, " ")

	tokens := strings.Fields(s)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

// Bigrams joins each adjacent token pair with a single space.
func Bigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i < len(tokens)-1; i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}
