// Package rewriter reformulates a query after retrieval came back empty.
package rewriter

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeywordRewriter reduces a question to its content words: stopwords, question
// words and trailing Korean particles are removed, duplicates dropped, order kept.
type KeywordRewriter struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewKeywordRewriter() *KeywordRewriter {
	return &KeywordRewriter{
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Rewrite returns the keyword form of query, or the trimmed query when no keyword survives.
func (r *KeywordRewriter) Rewrite(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	seen := map[string]struct{}{}
	var keep []string
	for _, tok := range r.tokenPattern.FindAllString(strings.ToLower(query), -1) {
		tok = stripParticle(tok)
		if _, stop := r.stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keep = append(keep, tok)
	}
	if len(keep) == 0 {
		return strings.TrimSpace(query), nil
	}
	return strings.Join(keep, " "), nil
}

// particles are ordered longest first so the longest ending wins.
var particles = []string{
	"입니까", "인가요", "이에요", "에서는", "으로는",
	"인가", "에서", "으로", "에게", "까지", "부터", "처럼", "이란", "나요", "가요", "예요",
	"은", "는", "이", "가", "을", "를", "의", "에", "로", "와", "과", "도", "만", "요",
}

// stripParticle removes one trailing particle from a Hangul token, keeping at least one rune.
func stripParticle(tok string) string {
	last, _ := utf8.DecodeLastRuneInString(tok)
	if !unicode.Is(unicode.Hangul, last) {
		return tok
	}
	for _, p := range particles {
		if strings.HasSuffix(tok, p) && utf8.RuneCountInString(tok) > utf8.RuneCountInString(p) {
			return strings.TrimSuffix(tok, p)
		}
	}
	return tok
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "when", "where", "why", "how", "do", "does", "did", "many", "much", "please", "tell", "me",
		"무엇", "뭐", "무슨", "어떤", "어떻게", "언제", "어디", "누구", "왜", "몇", "얼마나", "알려줘", "알려주세요",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
