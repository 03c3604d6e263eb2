// Package splitter turns extracted document text into ordered fragments.
// All strategies operate on runes, not bytes, so CJK text splits correctly.
package splitter

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// Strategy selects how text is cut into fragments.
type Strategy string

const (
	// Fixed slides a chunkSize window with overlap across the text.
	Fixed Strategy = "fixed"
	// Newline emits one fragment per non-empty line.
	Newline Strategy = "newline"
	// Paragraph splits on blank-line boundaries, keeping paragraphs whole.
	Paragraph Strategy = "paragraph"
	// Sentence splits on terminal punctuation, keeping it attached.
	Sentence Strategy = "sentence"
	// Smart splits by paragraph, oversized paragraphs by sentence,
	// oversized sentences by fixed window.
	Smart Strategy = "smart"
)

// Default split parameters, matching the upload API defaults.
const (
	DefaultChunkSize = 400
	DefaultOverlap   = 50
)

// Strategies returns the static strategy-to-description map served over HTTP.
func Strategies() map[string]string {
	return map[string]string{
		string(Fixed):     "fixed-size window with overlap",
		string(Newline):   "one fragment per line",
		string(Paragraph): "split on blank lines, paragraphs kept whole",
		string(Sentence):  "split on sentence-terminal punctuation",
		string(Smart):     "paragraphs first, then sentences, then fixed window",
	}
}

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	_, ok := Strategies()[string(s)]
	return ok
}

// Split cuts text into ordered fragments according to the strategy.
// Empty or whitespace-only input yields an empty slice, not an error.
// chunkSize and overlap apply to the fixed and smart strategies and must
// satisfy chunkSize > 0 and 0 <= overlap < chunkSize.
func Split(text string, strategy Strategy, chunkSize, overlap int) ([]string, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown split strategy %q", domain.ErrInvalidParameter, strategy)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", domain.ErrInvalidParameter, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf(
			"%w: chunk_overlap must satisfy 0 <= overlap < chunk_size, got overlap=%d chunk_size=%d",
			domain.ErrInvalidParameter, overlap, chunkSize,
		)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}

	switch strategy {
	case Fixed:
		return splitFixed(text, chunkSize, overlap), nil
	case Newline:
		return splitNewline(text), nil
	case Paragraph:
		return splitParagraph(text), nil
	case Sentence:
		return splitSentence(text), nil
	case Smart:
		return splitSmart(text, chunkSize, overlap), nil
	default:
		return nil, fmt.Errorf("%w: unknown split strategy %q", domain.ErrInvalidParameter, strategy)
	}
}

// splitFixed slides a chunkSize window, advancing by chunkSize-overlap.
// Windows cover every rune of the input; the last window may be shorter.
func splitFixed(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	stride := chunkSize - overlap
	chunks := make([]string, 0, len(runes)/stride+1)
	for start := 0; start < len(runes); start += stride {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func splitNewline(text string) []string {
	lines := strings.Split(text, "\n")
	chunks := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		chunks = append(chunks, line)
	}
	return chunks
}

// splitParagraph splits on runs of two or more line breaks. Lone carriage
// returns are normalized away first so CRLF input behaves like LF input.
func splitParagraph(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var chunks []string
	for _, para := range splitBlankLines(text) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		chunks = append(chunks, para)
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks
}

// splitBlankLines cuts text at every run of 2+ newlines.
func splitBlankLines(text string) []string {
	var parts []string
	start := 0
	run := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			run++
			continue
		}
		if run >= 2 {
			parts = append(parts, string(runes[start:i-run]))
			start = i
		}
		run = 0
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

// Sentence-terminal punctuation, ASCII and CJK.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// splitSentence cuts after terminal punctuation followed by whitespace or end
// of text. The punctuation stays attached to its sentence. A run of enders
// ("?!", "...") is kept together.
func splitSentence(text string) []string {
	runes := []rune(text)
	var chunks []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !sentenceEnders[runes[i]] {
			continue
		}
		// Absorb the full punctuation run.
		end := i
		for end+1 < len(runes) && sentenceEnders[runes[end+1]] {
			end++
		}
		atEnd := end == len(runes)-1
		// CJK enders terminate a sentence even without trailing whitespace.
		cjk := runes[end] == '。' || runes[end] == '！' || runes[end] == '？'
		followedBySpace := !atEnd && isSpace(runes[end+1])
		if atEnd || followedBySpace || cjk {
			sentence := strings.TrimSpace(string(runes[start : end+1]))
			if sentence != "" {
				chunks = append(chunks, sentence)
			}
			start = end + 1
		}
		i = end
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		chunks = append(chunks, tail)
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', '　':
		return true
	}
	return false
}

// splitSmart guarantees no fragment exceeds chunkSize unless a single
// indivisible token does: paragraphs first, oversized paragraphs by sentence,
// oversized sentences by fixed window.
func splitSmart(text string, chunkSize, overlap int) []string {
	var chunks []string
	for _, para := range splitParagraph(text) {
		if runeLen(para) <= chunkSize {
			chunks = append(chunks, para)
			continue
		}
		for _, sentence := range splitSentence(para) {
			if runeLen(sentence) <= chunkSize {
				chunks = append(chunks, sentence)
				continue
			}
			chunks = append(chunks, splitFixed(sentence, chunkSize, overlap)...)
		}
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks
}

func runeLen(s string) int {
	return len([]rune(s))
}
