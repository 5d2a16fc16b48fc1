package chunker

import (
	"regexp"
	"strings"

	"ragqa/internal/domain"
)

// TokenSplitter splits text into chunks of at most maxTokens tokens with no overlap.
// It tries paragraph, line, sentence, word and finally rune boundaries, in that order,
// so the same text always yields the same chunk boundaries.
type TokenSplitter struct {
	maxTokens int
	counter   Counter
}

func NewTokenSplitter(maxTokens int, counter Counter) *TokenSplitter {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	if counter == nil {
		counter = WordCounter{}
	}
	return &TokenSplitter{maxTokens: maxTokens, counter: counter}
}

// MaxTokens returns the per-chunk token budget.
func (s *TokenSplitter) MaxTokens() int { return s.maxTokens }

type piece struct {
	sep  string
	text string
}

type level struct {
	sep   string
	split func(string) []string
}

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?。！？]+\s+`)
	lineEnding     = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

var levels = []level{
	{sep: "\n\n", split: func(s string) []string { return paragraphBreak.Split(s, -1) }},
	{sep: "\n", split: func(s string) []string { return strings.Split(s, "\n") }},
	{sep: " ", split: splitSentences},
	{sep: " ", split: strings.Fields},
	{sep: "", split: splitRunes},
}

// Split returns the chunks of document in order. Sequence numbers start at 0.
func (s *TokenSplitter) Split(document domain.Document) []domain.Chunk {
	text := lineEnding.Replace(document.Content)
	pieces := s.pieces(text, 0, "")
	if len(pieces) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, domain.Chunk{
			SourceID: document.ID,
			Sequence: len(chunks),
			Content:  cur.String(),
			Tokens:   curTokens,
		})
		cur.Reset()
		curTokens = 0
	}
	for _, p := range pieces {
		if cur.Len() == 0 {
			cur.WriteString(p.text)
			curTokens = s.counter.Count(p.text)
			continue
		}
		candidate := cur.String() + p.sep + p.text
		n := s.counter.Count(candidate)
		if n > s.maxTokens {
			flush()
			cur.WriteString(p.text)
			curTokens = s.counter.Count(p.text)
			continue
		}
		cur.Reset()
		cur.WriteString(candidate)
		curTokens = n
	}
	flush()
	return chunks
}

// pieces breaks text down until every piece fits the budget on its own.
func (s *TokenSplitter) pieces(text string, depth int, sep string) []piece {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if depth >= len(levels) || s.counter.Count(trimmed) <= s.maxTokens {
		return []piece{{sep: sep, text: trimmed}}
	}
	lv := levels[depth]
	var out []piece
	for _, part := range lv.split(trimmed) {
		partSep := lv.sep
		if len(out) == 0 {
			partSep = sep
		}
		out = append(out, s.pieces(part, depth+1, partSep)...)
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[last:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

func splitRunes(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
