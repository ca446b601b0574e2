package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("connection reset"), true},
		{"cancelled", fmt.Errorf("query: %w", context.Canceled), false},
		{"config", NewConfigError("missing index host"), false},
		{"empty embedding", &RetrievalError{Type: ErrTypeEmbedding, Operation: "embedding", Message: "empty embedding response"}, false},
		{"embedding unauthorized", &RetrievalError{Type: ErrTypeEmbedding, Operation: "embedding",
			Cause: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}}, false},
		{"embedding rate limited", &RetrievalError{Type: ErrTypeEmbedding, Operation: "embedding",
			Cause: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}}, true},
		{"request timeout", &openai.RequestError{HTTPStatusCode: http.StatusRequestTimeout, Err: errors.New("slow")}, true},
		{"bad gateway", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("down")}, true},
		{"not found", &openai.RequestError{HTTPStatusCode: http.StatusNotFound, Err: errors.New("no model")}, false},
		{"query failure", &RetrievalError{Type: ErrTypeQuery, Operation: "query", Cause: errors.New("unavailable")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryService_RetriesTransientFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	r := NewRetryService(cfg, nopLogger{})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryService_StopsOnPermanentFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	r := NewRetryService(cfg, nopLogger{})

	denied := &RetrievalError{Type: ErrTypeEmbedding, Operation: "embedding", Message: "failed to create embedding",
		Cause: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return denied
	})
	assert.Same(t, denied, err)
	assert.Equal(t, 1, calls)
}

func TestRetryService_GivesUpAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	r := NewRetryService(cfg, nopLogger{})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("unavailable")
	})
	assert.EqualError(t, err, "unavailable")
	assert.Equal(t, 3, calls)
}

func TestRetryService_TimeoutWins(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 5
	r := NewRetryService(cfg, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("interrupted")
	})
	var rerr *RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrTypeTimeout, rerr.Type)
}
