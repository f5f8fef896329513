package service

import (
	"sync"
	"unicode/utf8"

	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const tokenEncoding = "cl100k_base"

// TokenEstimator counts prompt tokens with the cl100k_base encoding, or
// approximates four characters per token when the encoding is unavailable.
// The encoding is loaded on first use.
type TokenEstimator struct {
	logger   *zap.Logger
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTokenEstimator creates an estimator. A nil logger discards logs.
func NewTokenEstimator(logger *zap.Logger) *TokenEstimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenEstimator{logger: logger}
}

func (e *TokenEstimator) load() {
	encoding, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		e.logger.Warn("token encoding unavailable, using approximation",
			zap.String("encoding", tokenEncoding),
			zap.Error(err),
		)
		return
	}
	e.encoding = encoding
}

// Count returns the token count of text
func (e *TokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(e.load)
	if e.encoding == nil {
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// CountMessages returns the token count of a prompt including the per
// message overhead of the chat format
func (e *TokenEstimator) CountMessages(messages []domain.ChatMessage) int {
	tokens := 0
	for _, m := range messages {
		tokens += 4
		tokens += e.Count(m.Content)
		tokens += e.Count(m.Role)
	}
	return tokens + 3
}
