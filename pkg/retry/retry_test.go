package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeOps/pkg/logger"
)

func TestDoFirstAttemptSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), logger.Nop(), "op", Options{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), logger.Nop(), "op", Options{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoExhausted(t *testing.T) {
	underlying := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), logger.Nop(), "op", Options{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		return 0, underlying
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want exactly 3", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error %v is not *ExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, underlying) {
		t.Fatalf("exhausted error does not wrap the last failure")
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, logger.Nop(), "op", Options{MaxAttempts: 5, InitialDelay: time.Minute}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry after cancel)", calls)
	}
}

func TestDelayGrowth(t *testing.T) {
	opts := Options{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, BackoffFactor: 2}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
	}
	for _, c := range cases {
		if got := opts.Delay(c.attempt); got != c.want {
			t.Fatalf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	opts := Options{}.normalized()
	if opts.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", opts.MaxAttempts)
	}
	if opts.InitialDelay != time.Second {
		t.Fatalf("InitialDelay = %v, want 1s", opts.InitialDelay)
	}
	if opts.BackoffFactor != 2.0 {
		t.Fatalf("BackoffFactor = %v, want 2.0", opts.BackoffFactor)
	}
}
