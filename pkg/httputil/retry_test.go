package httputil

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	transient := Retryable(errors.New("connection refused"))
	permanent := errors.New("bad request")

	tests := []struct {
		name      string
		attempts  int
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{"first try", 3, nil, 1, nil},
		{"recovers", 3, []error{transient, transient}, 3, nil},
		{"exhausted", 2, []error{transient, transient, transient}, 2, transient},
		{"permanent stops", 5, []error{permanent}, 1, permanent},
		{"zero attempts still tries once", 0, []error{transient}, 1, transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), Policy{Attempts: tt.attempts, Delay: time.Millisecond}, func(attempt int) error {
				if attempt != calls {
					t.Errorf("attempt = %d, want %d", attempt, calls)
				}
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, Policy{Attempts: 5, Delay: time.Hour}, func(int) error {
		calls++
		cancel()
		return Retryable(errors.New("down"))
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryMaxDelay(t *testing.T) {
	start := time.Now()
	_ = Retry(context.Background(), Policy{Attempts: 4, Delay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond}, func(int) error {
		return Retryable(errors.New("down"))
	})
	// Three waits of 5ms each; without the cap this would be 35ms.
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond*10 {
		t.Errorf("elapsed = %v, too long", elapsed)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		code      int
		wantErr   bool
		retryable bool
	}{
		{http.StatusOK, false, false},
		{http.StatusCreated, false, false},
		{http.StatusBadRequest, true, false},
		{http.StatusNotFound, true, false},
		{http.StatusTooManyRequests, true, true},
		{http.StatusInternalServerError, true, true},
		{http.StatusServiceUnavailable, true, true},
	}
	for _, tt := range tests {
		err := CheckStatus(tt.code)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckStatus(%d) = %v, wantErr %v", tt.code, err, tt.wantErr)
			continue
		}
		if err == nil {
			continue
		}
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("IsRetryable(CheckStatus(%d)) = %v, want %v", tt.code, got, tt.retryable)
		}
		if !errors.Is(err, ErrStatus) {
			t.Errorf("CheckStatus(%d) does not wrap ErrStatus", tt.code)
		}
	}
}

func TestReadErrorBody(t *testing.T) {
	got := ReadErrorBody(strings.NewReader("  out of\n memory \n"))
	if got != "out of memory" {
		t.Errorf("ReadErrorBody = %q, want %q", got, "out of memory")
	}
	long := strings.Repeat("x", 2000)
	if got := ReadErrorBody(strings.NewReader(long)); len(got) != 512 {
		t.Errorf("len = %d, want 512", len(got))
	}
}
