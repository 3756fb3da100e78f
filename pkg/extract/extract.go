// Package extract derives structured entities from recognized text. It is a
// pipeline of independent pure matchers over one input string; no I/O, no
// state, identical output for identical input.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

const keywordLimit = 10

var (
	dateNumericDMY = regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{4}\b`)
	dateNumericYMD = regexp.MustCompile(`\b\d{4}[./-]\d{1,2}[./-]\d{1,2}\b`)
	dateMonthEN    = regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{4}\b`)
	dateMonthRU    = regexp.MustCompile(`(?i)\d{1,2}\s+(?:января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)\s+\d{4}`)

	// Two literal amount shapes: currency symbol leading the digit group, or a
	// symbol/code trailing it. Overlapping matches are deduplicated afterwards.
	// The digit group is either thousands-separated triplets or a plain run,
	// so a neighbouring numeric date is never folded into the span.
	amountSymbolFirst = regexp.MustCompile(`[$€£₽]\s?(?:\d{1,3}(?:[ ,.]\d{3})+|\d+)(?:[.,]\d{1,2})?`)
	amountTokenLast   = regexp.MustCompile(`(?i)\b(?:\d{1,3}(?:[ ,.]\d{3})+|\d+)(?:[.,]\d{1,2})?\s?(?:(?:USD|EUR|GBP|RUB)\b|руб\.?|[$€£₽])`)

	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	phonePattern = regexp.MustCompile(`(\+\d{1,3}[ \-]?)?(\(\d{1,5}\)[ \-]?)?\d(?:[ \-]?\d){5,12}`)
)

// Entities runs all matchers over the text and merges their output into one
// bag with per-set insertion-order deduplication. Empty or malformed input
// yields five empty sets, never an error.
func Entities(text string) domain.ExtractedData {
	return domain.ExtractedData{
		Dates:    Dates(text),
		Amounts:  Amounts(text),
		Emails:   Emails(text),
		Phones:   Phones(text),
		Keywords: Keywords(text),
	}
}

// Dates matches numeric DD.MM.YYYY (also - and / separators), numeric
// YYYY-MM-DD, and "day monthname year" in both supported languages. Matches
// from every pattern are kept; duplicates are removed by exact string.
func Dates(text string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, re := range []*regexp.Regexp{dateNumericDMY, dateNumericYMD, dateMonthEN, dateMonthRU} {
		out = appendUnique(out, seen, re.FindAllString(text, -1)...)
	}
	return out
}

// Amounts matches digit groups adjacent to a currency symbol or 3-letter
// code. Digit groups may contain spaces, commas, and periods as separators.
func Amounts(text string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, re := range []*regexp.Regexp{amountSymbolFirst, amountTokenLast} {
		for _, m := range re.FindAllString(text, -1) {
			out = appendUnique(out, seen, strings.TrimSpace(m))
		}
	}
	return out
}

// Emails matches local@domain.tld spans with case preserved.
func Emails(text string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	return appendUnique(out, seen, emailPattern.FindAllString(text, -1)...)
}

// Phones matches national digit groups of 7 to 11 digits, optionally preceded
// by a country-code token and grouped with spaces, dashes, or parentheses.
func Phones(text string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, m := range phonePattern.FindAllStringSubmatch(text, -1) {
		whole, country := m[0], m[1]
		if looksLikeDate(whole) {
			continue
		}
		national := countDigits(whole) - countDigits(country)
		if national < 7 || national > 11 {
			continue
		}
		out = appendUnique(out, seen, strings.TrimSpace(whole))
	}
	return out
}

// Keywords lower-cases tokens, strips non-letter runes, drops stop words and
// tokens of fewer than four letters, then ranks by frequency descending with
// ties broken by first occurrence. At most ten keywords are returned.
func Keywords(text string) []string {
	type stat struct {
		count int
		first int
	}
	stats := map[string]*stat{}
	order := []string{}
	for i, field := range strings.Fields(text) {
		token := normalizeToken(field)
		if len([]rune(token)) <= 3 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if s, ok := stats[token]; ok {
			s.count++
			continue
		}
		stats[token] = &stat{count: 1, first: i}
		order = append(order, token)
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := stats[order[a]], stats[order[b]]
		if sa.count != sb.count {
			return sa.count > sb.count
		}
		return sa.first < sb.first
	})
	if len(order) > keywordLimit {
		order = order[:keywordLimit]
	}
	return order
}

func normalizeToken(field string) string {
	var b strings.Builder
	for _, r := range field {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// looksLikeDate guards the phone matcher against numeric dates such as
// 15-03-2024, whose digit count falls inside the phone range.
func looksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	return dateNumericDMY.MatchString(s) || dateNumericYMD.MatchString(s)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func appendUnique(dst []string, seen map[string]struct{}, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
