// Package executor serializes commit submissions. Concurrent submission
// of two commits is a correctness hazard (duplicate spend), so every
// request flows through a single ordered queue consumed by one worker,
// and a request whose sequence token has been overtaken is discarded
// rather than executed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/snipebot/internal/domain"
	"github.com/alanyoungcy/snipebot/internal/service"
)

const defaultQueueSize = 16

// Serializer guarantees at most one in-flight commit. New requests take a
// monotonically increasing token; at dequeue time a request whose token is
// no longer the newest is superseded and dropped. Supersession is the only
// cancellation primitive: an already-submitted transaction is never
// cancelled, only its outcome ignored.
type Serializer struct {
	sink     domain.ExecutionSink
	attempts domain.AttemptStore // optional
	stats    *service.Stats
	logger   *slog.Logger

	seq   atomic.Uint64
	queue chan domain.CommitRequest
}

// New creates a Serializer submitting through sink. attempts may be nil
// when auditing is disabled.
func New(sink domain.ExecutionSink, attempts domain.AttemptStore, stats *service.Stats, logger *slog.Logger) *Serializer {
	return &Serializer{
		sink:     sink,
		attempts: attempts,
		stats:    stats,
		logger:   logger.With(slog.String("component", "executor")),
		queue:    make(chan domain.CommitRequest, defaultQueueSize),
	}
}

// Enqueue issues a new sequence token for the decision and queues the
// request. Issuing the token immediately marks every earlier queued or
// in-flight request as superseded. A full queue rejects the request with
// domain.ErrQueueFull; the next tick will re-decide anyway.
func (s *Serializer) Enqueue(decision domain.Decision, amount *big.Int, round uint64) (uint64, error) {
	token := s.seq.Add(1)
	req := domain.CommitRequest{
		ID:       uuid.New().String(),
		Token:    token,
		Amount:   new(big.Int).Set(amount),
		Decision: decision,
		Round:    round,
		IssuedAt: time.Now().UTC(),
	}

	select {
	case s.queue <- req:
		s.stats.Enqueue()
		return token, nil
	default:
		s.logger.Warn("commit queue full, dropping request",
			slog.Uint64("token", token),
			slog.String("rule", decision.Rule),
		)
		return 0, fmt.Errorf("executor: enqueue token %d: %w", token, domain.ErrQueueFull)
	}
}

// Token returns the most recently issued sequence token.
func (s *Serializer) Token() uint64 { return s.seq.Load() }

// Run consumes the queue until the context is cancelled. It is the only
// goroutine that touches the sink, which is what makes execution
// single-flight.
func (s *Serializer) Run(ctx context.Context) error {
	s.logger.Info("executor started")
	defer s.logger.Info("executor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.queue:
			s.process(ctx, req)
		}
	}
}

// process submits one request unless it has been superseded.
func (s *Serializer) process(ctx context.Context, req domain.CommitRequest) {
	log := s.logger.With(
		slog.String("request_id", req.ID),
		slog.Uint64("token", req.Token),
		slog.String("rule", req.Decision.Rule),
	)

	// A fresher token means a fresher decision exists; executing this one
	// anyway could double-spend. Expected outcome, not an error.
	if latest := s.seq.Load(); req.Token != latest {
		log.Info("request superseded, discarding",
			slog.Uint64("latest_token", latest),
		)
		s.stats.Supersede()
		s.record(ctx, req, domain.Attempt{Outcome: domain.AttemptSuperseded})
		return
	}

	balance, err := s.sink.Balance(ctx)
	if err != nil {
		log.Error("balance check failed", slog.String("error", err.Error()))
		s.stats.Fail()
		s.record(ctx, req, domain.Attempt{Outcome: domain.AttemptFailed, Error: err.Error()})
		return
	}
	if balance.Cmp(req.Amount) < 0 {
		err := fmt.Errorf("executor: balance %s below commit %s: %w", balance, req.Amount, domain.ErrInsufficientBalance)
		log.Warn("skipping commit", slog.String("error", err.Error()))
		s.stats.Fail()
		s.record(ctx, req, domain.Attempt{Outcome: domain.AttemptFailed, Error: err.Error()})
		return
	}

	receipt, err := s.sink.SubmitCommit(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("commit submission failed", slog.String("error", err.Error()))
		s.stats.Fail()
		s.record(ctx, req, domain.Attempt{Outcome: domain.AttemptFailed, Error: err.Error()})
		return
	}

	log.Info("commit confirmed",
		slog.String("tx", receipt.TxHash.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
		slog.String("amount", req.Amount.String()),
	)
	s.stats.Confirm()
	s.record(ctx, req, domain.Attempt{Outcome: domain.AttemptConfirmed, TxHash: receipt.TxHash})
}

// record persists the attempt when auditing is enabled. Persistence
// failures are logged, never propagated: audit is best-effort.
func (s *Serializer) record(ctx context.Context, req domain.CommitRequest, result domain.Attempt) {
	if s.attempts == nil {
		return
	}
	a := domain.Attempt{
		ID:       req.ID,
		Token:    req.Token,
		Round:    req.Round,
		Amount:   req.Amount,
		Rule:     req.Decision.Rule,
		Reason:   req.Decision.Reason,
		Outcome:  result.Outcome,
		TxHash:   result.TxHash,
		Error:    result.Error,
		IssuedAt: req.IssuedAt,
		DoneAt:   time.Now().UTC(),
	}
	if err := s.attempts.Insert(ctx, a); err != nil {
		s.logger.Warn("attempt audit failed", slog.String("error", err.Error()))
	}
}
