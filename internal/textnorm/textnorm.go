// Package textnorm turns raw chat text into text that reads well through a
// speech engine. All functions are pure.
package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// LinkToken replaces every URL in spoken text.
const LinkToken = "링크"

// DefaultMaxRepeat is the run length [Preprocess] clamps repeated characters to.
const DefaultMaxRepeat = 4

// urlPattern ends a URL at any Unicode whitespace. RE2's \s is ASCII only,
// so separators such as U+3000 and NBSP are listed explicitly.
var urlPattern = regexp.MustCompile(`https?://[^\s\v\x{1c}-\x{1f}\x{85}\p{Z}]+`)

// ReplaceURLs replaces every http(s) URL, up to the next whitespace, with
// [LinkToken].
func ReplaceURLs(text string) string {
	return urlPattern.ReplaceAllLiteralString(text, LinkToken)
}

// LimitRepeatedCharacters clamps every run of the same code point longer than
// maxRepeat down to maxRepeat. Newlines are never clamped. A maxRepeat below 1
// returns text unchanged.
func LimitRepeatedCharacters(text string, maxRepeat int) string {
	if maxRepeat < 1 || len(text) <= maxRepeat {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	var (
		prev rune = -1
		run  int
	)
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run > maxRepeat && r != '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Preprocess prepares message text for synthesis: URLs first, then repeated
// characters. The order matters, a URL must be gone before its characters are
// counted.
func Preprocess(text string) string {
	return LimitRepeatedCharacters(ReplaceURLs(text), DefaultMaxRepeat)
}

// Truncate returns at most the first n runes of text.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
