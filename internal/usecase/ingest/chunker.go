package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// maxChunkChars bounds one chunk so it embeds well; overly long chunks
	// dilute the vector signal.
	maxChunkChars = 500
	// minChunkChars drops trailing fragments too short to carry meaning.
	minChunkChars = 10
)

// splitChunks breaks entry text into embedding-sized pieces along sentence
// boundaries. Sentences are greedily packed up to maxChunkChars runes; a
// single oversized sentence is hard-cut. Pieces of minChunkChars runes or
// fewer are discarded.
func splitChunks(text string) []string {
	var chunks []string

	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); utf8.RuneCountInString(s) > minChunkChars {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, sent := range splitSentences(text) {
		n := utf8.RuneCountInString(sent)

		if n > maxChunkChars {
			flush()
			for r := []rune(sent); len(r) > 0; {
				cut := maxChunkChars
				if cut > len(r) {
					cut = len(r)
				}
				if piece := strings.TrimSpace(string(r[:cut])); utf8.RuneCountInString(piece) > minChunkChars {
					chunks = append(chunks, piece)
				}
				r = r[cut:]
			}
			continue
		}

		if curLen > 0 && curLen+1+n > maxChunkChars {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(sent)
		curLen += n
	}
	flush()

	return chunks
}

// splitSentences cuts text after sentence-ending punctuation followed by
// whitespace, and on newlines.
func splitSentences(text string) []string {
	var sentences []string

	var b strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		if r == '\n' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
			continue
		}
		b.WriteRune(r)
		if isSentenceEnd(r) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
