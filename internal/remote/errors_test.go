package remote

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{200, nil},
		{201, nil},
		{204, nil},
		{400, ErrRemoteRejected},
		{401, ErrAuthExpired},
		{403, ErrAuthExpired},
		{409, ErrRemoteRejected},
		{422, ErrRemoteRejected},
		{429, ErrRetriableTransient},
		{500, ErrRetriableTransient},
		{503, ErrRetriableTransient},
	}
	for _, tt := range tests {
		got := classifyStatus(tt.status, "test")
		if tt.want == nil {
			if got != nil {
				t.Errorf("status %d: expected nil, got %v", tt.status, got)
			}
			continue
		}
		if !errors.Is(got, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, got)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	if got := classifyTransport(nil, "test"); got != nil {
		t.Errorf("expected nil for nil error, got %v", got)
	}

	if got := classifyTransport(timeoutErr{}, "test"); !errors.Is(got, ErrRetriableTransient) {
		t.Errorf("expected timeout to classify as transient, got %v", got)
	}

	if got := classifyTransport(fmt.Errorf("connection refused"), "test"); !errors.Is(got, ErrNetworkUnavailable) {
		t.Errorf("expected refusal to classify as unavailable, got %v", got)
	}
}

func TestRetriable(t *testing.T) {
	if !Retriable(fmt.Errorf("wrap: %w", ErrRetriableTransient)) {
		t.Error("expected transient to be retriable")
	}
	if !Retriable(fmt.Errorf("wrap: %w", ErrNetworkUnavailable)) {
		t.Error("expected network unavailable to be retriable")
	}
	if Retriable(fmt.Errorf("wrap: %w", ErrRemoteRejected)) {
		t.Error("expected rejection to not be retriable")
	}
	if Retriable(fmt.Errorf("wrap: %w", ErrAuthExpired)) {
		t.Error("expected auth expiry to not be retriable")
	}
}
