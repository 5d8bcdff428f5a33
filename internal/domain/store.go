package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Settlement records one settled round as observed on chain.
type Settlement struct {
	ID        string
	Round     uint64
	Price     *big.Int
	Winner    common.Address
	TxHash    common.Hash
	LogIndex  uint
	SettledAt time.Time
}

// AttemptOutcome classifies how a commit attempt ended.
type AttemptOutcome string

const (
	AttemptConfirmed  AttemptOutcome = "confirmed"
	AttemptFailed     AttemptOutcome = "failed"
	AttemptSuperseded AttemptOutcome = "superseded"
)

// Attempt records one commit request's journey through the serializer,
// including the decision snapshot that produced it.
type Attempt struct {
	ID       string
	Token    uint64
	Round    uint64
	Amount   *big.Int
	Rule     string
	Reason   string
	Outcome  AttemptOutcome
	TxHash   common.Hash
	Error    string
	IssuedAt time.Time
	DoneAt   time.Time
}

// SettlementStore persists settled rounds. Inserts with a duplicate
// tx-hash+log-index are silently skipped.
type SettlementStore interface {
	Insert(ctx context.Context, s Settlement) error
	LastSettledPrice(ctx context.Context) (*big.Int, error)
	ListRecent(ctx context.Context, limit int) ([]Settlement, error)
}

// AttemptStore persists commit attempts for auditing.
type AttemptStore interface {
	Insert(ctx context.Context, a Attempt) error
	ListRecent(ctx context.Context, limit int) ([]Attempt, error)
}
