// Package settlement is the boundary to the external settlement network and
// the reconciliation pass that finalizes pending entities against it.
package settlement

import (
	"context"
	"errors"
	"fmt"
)

// TransferPayload describes one transfer on the settlement network.
// Amount is in smallest internal currency units; implementations convert to
// the network's coin denomination.
type TransferPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// QueryResult is the network's answer for a submitted transfer.
// Validated=false means the network has not yet decided; once Validated,
// Succeeded and Outcome are final.
type QueryResult struct {
	Validated bool
	Succeeded bool
	Outcome   string
}

// Gateway is the synchronous RPC surface of the settlement network. All
// calls block on network I/O; callers impose timeouts through ctx or the
// implementation's client. The gateway never retries; retry policy lives in
// the Reconciler.
type Gateway interface {
	// Sign produces a signed transfer blob.
	Sign(ctx context.Context, payload TransferPayload, secret string) ([]byte, error)

	// Submit sends a signed blob to the network and returns the external
	// reference (transfer hash) to query it by.
	Submit(ctx context.Context, blob []byte) (string, error)

	// Query reports the status of a submitted transfer.
	Query(ctx context.Context, ref string) (*QueryResult, error)
}

// ErrNoResponse means the network gave no answer (transport failure or
// timeout). The operation's true outcome is unknown, so the affected entity
// stays PENDING and no error is recorded on it.
var ErrNoResponse = errors.New("settlement network gave no response")

// ErrRefNotFound means the network does not know the queried reference. The
// reconciler treats a reference unknown for longer than the grace period as
// abandoned.
var ErrRefNotFound = errors.New("settlement reference not found")

// RejectedError is a definitive, structured rejection from the network.
type RejectedError struct {
	Outcome string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("settlement rejected: %s", e.Outcome)
}
