package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Insert persists one settled round. A duplicate tx_hash+log_index is
// silently skipped via ON CONFLICT DO NOTHING.
func (s *SettlementStore) Insert(ctx context.Context, st domain.Settlement) error {
	id := st.ID
	if id == "" {
		id = uuid.NewString()
	}

	const query = `
		INSERT INTO settlements (id, round, price, winner, tx_hash, log_index, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		id, int64(st.Round), st.Price.String(), st.Winner.Hex(),
		st.TxHash.Hex(), int64(st.LogIndex), st.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement: %w", err)
	}
	return nil
}

// LastSettledPrice returns the price of the most recently settled round.
func (s *SettlementStore) LastSettledPrice(ctx context.Context) (*big.Int, error) {
	var priceText string
	err := s.pool.QueryRow(ctx,
		"SELECT price FROM settlements ORDER BY settled_at DESC LIMIT 1",
	).Scan(&priceText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: last settled price: %w", err)
	}

	price, ok := new(big.Int).SetString(priceText, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: stored price %q is not an integer", priceText)
	}
	return price, nil
}

// ListRecent returns the most recent settlements, newest first.
func (s *SettlementStore) ListRecent(ctx context.Context, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, round, price, winner, tx_hash, log_index, settled_at
		FROM settlements
		ORDER BY settled_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var (
			st        domain.Settlement
			round     int64
			priceText string
			winner    string
			txHash    string
			logIndex  int64
		)
		if err := rows.Scan(&st.ID, &round, &priceText, &winner, &txHash, &logIndex, &st.SettledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		price, ok := new(big.Int).SetString(priceText, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: stored price %q is not an integer", priceText)
		}
		st.Round = uint64(round)
		st.Price = price
		st.Winner = common.HexToAddress(winner)
		st.TxHash = common.HexToHash(txHash)
		st.LogIndex = uint(logIndex)
		out = append(out, st)
	}
	return out, rows.Err()
}
