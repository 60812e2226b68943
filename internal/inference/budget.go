package inference

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingName  = "cl100k_base"
	charsPerToken = 4
)

// TokenCounter measures and trims text in model tokens.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// NewTokenCounter returns a tiktoken counter, or an approximate one when the
// encoding cannot be loaded (tiktoken fetches its ranks on first use).
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		slog.Warn("tiktoken encoding unavailable, approximating token counts",
			"encoding", encodingName,
			"error", err,
		)
		return ApproxCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *tiktokenCounter) Truncate(text string, maxTokens int) string {
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.enc.Decode(tokens[:max(maxTokens, 0)])
}

// ApproxCounter assumes four characters per token.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	n := len([]rune(text))
	return (n + charsPerToken - 1) / charsPerToken
}

func (ApproxCounter) Truncate(text string, maxTokens int) string {
	runes := []rune(text)
	limit := max(maxTokens, 0) * charsPerToken
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// fitContext keeps whole passages, in order, while they fit in maxTokens.
// The first passage is truncated rather than dropped when it alone overflows.
func fitContext(counter TokenCounter, passages []string, maxTokens int) []string {
	if maxTokens <= 0 {
		return passages
	}
	kept := make([]string, 0, len(passages))
	used := 0
	for i, p := range passages {
		n := counter.Count(p)
		if used+n > maxTokens {
			if i == 0 {
				kept = append(kept, counter.Truncate(p, maxTokens))
			}
			break
		}
		kept = append(kept, p)
		used += n
	}
	return kept
}
