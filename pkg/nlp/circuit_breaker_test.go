package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/groundgraph/pkg/config"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerClient_Trips(t *testing.T) {
	mock := &mockClient{failUntilCall: 100, errorToReturn: errors.New("502 bad gateway")}
	cb := NewCircuitBreakerClient(mock, config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.6,
	}, "completion", nil)

	msgs := []types.Message{NewUserMessage("q")}
	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), msgs)
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Chat(context.Background(), msgs)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, mock.callCount)
}

func TestCircuitBreakerClient_CancelIsNotFailure(t *testing.T) {
	mock := &mockClient{failUntilCall: 100, errorToReturn: context.Canceled}
	cb := NewCircuitBreakerClient(mock, config.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.1,
	}, "completion", nil)

	for i := 0; i < 5; i++ {
		_, _ = cb.ChatWithStructuredOutput(context.Background(), nil, nil)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
