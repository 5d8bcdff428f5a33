package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates an AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Insert records one commit attempt. The serializer assigns IDs, so a
// duplicate insert for the same attempt overwrites the outcome fields.
func (s *AttemptStore) Insert(ctx context.Context, a domain.Attempt) error {
	const query = `
		INSERT INTO attempts (
			id, token, round, amount, rule, reason,
			outcome, tx_hash, error, issued_at, done_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			tx_hash = EXCLUDED.tx_hash,
			error = EXCLUDED.error,
			done_at = EXCLUDED.done_at`

	_, err := s.pool.Exec(ctx, query,
		a.ID, int64(a.Token), int64(a.Round), a.Amount.String(),
		a.Rule, a.Reason, string(a.Outcome), a.TxHash.Hex(),
		a.Error, a.IssuedAt, a.DoneAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert attempt: %w", err)
	}
	return nil
}

// ListRecent returns the most recent attempts, newest first.
func (s *AttemptStore) ListRecent(ctx context.Context, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, token, round, amount, rule, reason,
			outcome, tx_hash, error, issued_at, done_at
		FROM attempts
		ORDER BY issued_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var (
			a          domain.Attempt
			token      int64
			round      int64
			amountText string
			outcome    string
			txHash     string
		)
		if err := rows.Scan(
			&a.ID, &token, &round, &amountText, &a.Rule, &a.Reason,
			&outcome, &txHash, &a.Error, &a.IssuedAt, &a.DoneAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		amount, ok := new(big.Int).SetString(amountText, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: stored amount %q is not an integer", amountText)
		}
		a.Token = uint64(token)
		a.Round = uint64(round)
		a.Amount = amount
		a.Outcome = domain.AttemptOutcome(outcome)
		a.TxHash = common.HexToHash(txHash)
		out = append(out, a)
	}
	return out, rows.Err()
}
