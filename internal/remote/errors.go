package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error taxonomy surfaced by the adapter. Every failure crossing this
// boundary wraps exactly one of these sentinels; nothing panics past it.
// The reconciliation engine and queue decide per sentinel whether to
// queue, drop or abort.
var (
	// ErrNetworkUnavailable means the remote is unreachable. A cycle
	// seeing this aborts early with no partial writes.
	ErrNetworkUnavailable = errors.New("remote unavailable")

	// ErrRemoteRejected means the remote refused the write for semantic
	// reasons (validation or constraint failure, e.g. a duplicate zone
	// code). Retrying a rejected write is never correct.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrAuthExpired means credentials were refused. The cycle aborts and
	// the auth collaborator must re-authenticate.
	ErrAuthExpired = errors.New("remote auth expired")

	// ErrRetriableTransient means a timeout or 5xx-equivalent failure.
	// The affected item is requeued with an incremented attempt count.
	ErrRetriableTransient = errors.New("transient remote failure")
)

// classifyStatus maps an HTTP response status to the error taxonomy.
// Returns nil for success statuses.
func classifyStatus(status int, op string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", op, status, ErrAuthExpired)
	case status == http.StatusConflict ||
		status == http.StatusBadRequest ||
		status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: status %d: %w", op, status, ErrRemoteRejected)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s: status %d: %w", op, status, ErrRetriableTransient)
	default:
		return fmt.Errorf("%s: unexpected status %d: %w", op, status, ErrRetriableTransient)
	}
}

// classifyTransport maps a transport-level error (no HTTP response) to
// the taxonomy: timeouts are retriable per item, everything else means
// the network is unavailable.
func classifyTransport(err error, op string) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %v: %w", op, err, ErrRetriableTransient)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", op, err, ErrRetriableTransient)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrNetworkUnavailable)
}

// Retriable reports whether err should be handed to the sync queue for a
// later attempt rather than dropped or surfaced for manual resolution.
func Retriable(err error) bool {
	return errors.Is(err, ErrRetriableTransient) || errors.Is(err, ErrNetworkUnavailable)
}
