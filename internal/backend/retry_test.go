package backend

import (
	"errors"
	"testing"
	"time"
)

func TestRetryDelay_Sequence(t *testing.T) {
	expected := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
	}
	for attempt, want := range expected {
		if got := RetryDelay(attempt); got != want {
			t.Errorf("RetryDelay(%d) = %v, expected %v", attempt, got, want)
		}
	}
}

func TestRetryDelay_Cap(t *testing.T) {
	for _, attempt := range []int{4, 10, 63} {
		if got := RetryDelay(attempt); got != 16*time.Second {
			t.Errorf("RetryDelay(%d) = %v, expected cap of 16s", attempt, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"network error", &APIError{Kind: KindNetwork}, true},
		{"server error", &APIError{Kind: KindNetwork, StatusCode: 500}, true},
		{"request timeout", &APIError{Kind: KindUpstream, StatusCode: 408}, true},
		{"rate limited", &APIError{Kind: KindUpstream, StatusCode: 429}, true},
		{"bad gateway", &APIError{Kind: KindNetwork, StatusCode: 502}, true},
		{"service unavailable", &APIError{Kind: KindNetwork, StatusCode: 503}, true},
		{"gateway timeout", &APIError{Kind: KindNetwork, StatusCode: 504}, true},
		{"not found", &APIError{Kind: KindNotFound, StatusCode: 404}, false},
		{"bad request", &APIError{Kind: KindUpstream, StatusCode: 400}, false},
		{"validation", &APIError{Kind: KindValidation}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Retryable(test.err); got != test.expected {
				t.Errorf("Retryable() = %v, expected %v", got, test.expected)
			}
		})
	}
}

func TestShouldRetry_BudgetExhausted(t *testing.T) {
	err := &APIError{Kind: KindNetwork}

	for attempt := 0; attempt < 3; attempt++ {
		if !ShouldRetry(err, attempt) {
			t.Errorf("ShouldRetry(network, %d) = false, expected true", attempt)
		}
	}
	if ShouldRetry(err, 3) {
		t.Error("ShouldRetry(network, 3) = true, expected budget exhausted")
	}
}
