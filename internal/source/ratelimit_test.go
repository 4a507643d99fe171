package source

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func TestRateLimiterWaitWithHeadroom(t *testing.T) {
	rl := NewRateLimiter()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
}

func TestRateLimiterUpdateFromResponse(t *testing.T) {
	rl := NewRateLimiter()

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "4321")
	resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))

	rl.UpdateFromResponse(resp)
	if got := rl.Remaining(); got != 4321 {
		t.Errorf("Remaining() = %d, want 4321", got)
	}
}

func TestRateLimiterIgnoresMissingHeaders(t *testing.T) {
	rl := NewRateLimiter()
	before := rl.Remaining()

	rl.UpdateFromResponse(&http.Response{Header: http.Header{}})
	if got := rl.Remaining(); got != before {
		t.Errorf("Remaining() changed to %d without headers", got)
	}
}

func TestRateLimiterWaitsNearQuotaExhaustion(t *testing.T) {
	rl := NewRateLimiter()

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "10")
	resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(50*time.Millisecond).Unix(), 10))
	rl.UpdateFromResponse(resp)

	// A canceled context must interrupt the reset wait instead of hanging
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Skip("reset window already passed, nothing to wait for")
	}
}
