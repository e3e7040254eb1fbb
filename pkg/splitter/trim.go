package splitter

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	// DefaultContextSize is the token budget used when none is given.
	DefaultContextSize = 128_000
	// MinChunkSize is the smallest prefix, in runes, Trim will return.
	MinChunkSize = 140
	// charsPerToken is the rough rune-per-token ratio used to size cuts.
	charsPerToken = 3
)

// TokenCounter reports how many model tokens a text occupies.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a plain function to TokenCounter.
type TokenCounterFunc func(string) int

func (f TokenCounterFunc) Count(text string) int { return f(text) }

// ApproxCounter estimates tokens as one per charsPerToken runes.
var ApproxCounter = TokenCounterFunc(func(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
})

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

// TiktokenCounter counts with the cl100k_base encoding, loaded from the
// ranks embedded in the binary. If the encoding cannot be loaded it falls
// back to ApproxCounter.
var TiktokenCounter = TokenCounterFunc(func(text string) int {
	encOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken unavailable, using approximate token counts", "error", err)
			return
		}
		encoder = enc
	})
	if encoder == nil {
		return ApproxCounter(text)
	}
	return len(encoder.Encode(text, nil, nil))
})

// Trimmer shortens prompts until they fit a token budget.
type Trimmer struct {
	counter TokenCounter
}

// NewTrimmer returns a Trimmer. A nil counter selects TiktokenCounter.
func NewTrimmer(counter TokenCounter) *Trimmer {
	if counter == nil {
		counter = TiktokenCounter
	}
	return &Trimmer{counter: counter}
}

// Trim returns prompt unchanged when it fits contextSize tokens. Otherwise it
// keeps the leading chunk of a recursive split sized by the overflow and
// repeats until the result fits.
func (t *Trimmer) Trim(prompt string, contextSize int) string {
	if prompt == "" {
		return ""
	}
	if contextSize <= 0 {
		contextSize = DefaultContextSize
	}

	for {
		length := t.counter.Count(prompt)
		if length <= contextSize {
			return prompt
		}

		overflow := length - contextSize
		runes := []rune(prompt)
		chunkSize := len(runes) - overflow*charsPerToken
		if chunkSize < MinChunkSize {
			return string(runes[:min(MinChunkSize, len(runes))])
		}

		trimmed := firstChunk(prompt, chunkSize)
		if trimmed == "" || utf8.RuneCountInString(trimmed) >= len(runes) {
			trimmed = string(runes[:chunkSize])
		}
		prompt = trimmed
	}
}

func firstChunk(text string, chunkSize int) string {
	chunks, err := NewRecursiveCharacterTextSplitter(chunkSize, 0).SplitText(text)
	if err != nil || len(chunks) == 0 {
		return ""
	}
	return chunks[0]
}

func trimSpace(s string) string { return strings.TrimSpace(s) }
