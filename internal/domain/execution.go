package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CommitRequest asks the execution sink to submit one commit at Amount.
// Token is the serializer's monotonic sequence token; a request whose token
// is no longer the most recently issued one is superseded and dropped.
type CommitRequest struct {
	ID       string
	Token    uint64
	Amount   *big.Int
	Decision Decision
	Round    uint64
	IssuedAt time.Time
}

// CommitReceipt is the confirmation returned by a successful submission.
type CommitReceipt struct {
	TxHash      common.Hash
	GasUsed     uint64
	ConfirmedAt time.Time
}

// ExecutionSink submits commit actions to the chain. Failures are
// recoverable: they are recorded as failed attempts and never halt the
// tick loop.
type ExecutionSink interface {
	// Balance returns the caller's spendable balance.
	Balance(ctx context.Context) (*big.Int, error)
	// SubmitCommit sends the commit transaction and waits for confirmation.
	SubmitCommit(ctx context.Context, req CommitRequest) (CommitReceipt, error)
}
