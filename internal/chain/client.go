// Package chain talks to the auction contract: a JSON-RPC client for
// reads and commit submission, and a websocket log feed that turns
// contract events into domain events for the engine.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

const (
	receiptPollInterval = 500 * time.Millisecond
	receiptWait         = 2 * time.Minute
)

var (
	currentPriceSelector = crypto.Keccak256([]byte("currentPrice()"))[:4]
	commitSelector       = crypto.Keccak256([]byte("commit(uint256)"))[:4]
)

// Client is the JSON-RPC side of the provider. It reads contract state,
// checks the caller balance, and submits commit transactions, so it
// doubles as the engine's execution sink.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int

	// baselineTip anchors the safety multiplier: current suggested tip
	// divided by this value.
	baselineTip *big.Int

	logger *slog.Logger
}

// Dial connects to the RPC endpoint and resolves the chain ID. key may be
// nil for read-only use (monitor mode); SubmitCommit then fails.
func Dial(ctx context.Context, rpcURL string, contract common.Address, key *ecdsa.PrivateKey, baselineTip *big.Int, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}

	c := &Client{
		eth:         eth,
		contract:    contract,
		key:         key,
		chainID:     chainID,
		baselineTip: baselineTip,
		logger:      logger.With(slog.String("component", "chain")),
	}
	if key != nil {
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// From returns the caller address derived from the signing key.
func (c *Client) From() common.Address { return c.from }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// CurrentPrice reads the contract's authoritative current price.
func (c *Client) CurrentPrice(ctx context.Context) (*big.Int, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: currentPriceSelector,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: currentPrice: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: currentPrice returned empty result")
	}
	return new(big.Int).SetBytes(out), nil
}

// SafetyMultiplier reports the current suggested tip as a multiple of the
// configured baseline. 1.0 when no baseline is set.
func (c *Client) SafetyMultiplier(ctx context.Context) (float64, error) {
	if c.baselineTip == nil || c.baselineTip.Sign() <= 0 {
		return 1.0, nil
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: suggest tip: %w", err)
	}
	ratio, _ := new(big.Float).Quo(
		new(big.Float).SetInt(tip),
		new(big.Float).SetInt(c.baselineTip),
	).Float64()
	return ratio, nil
}

// Balance returns the caller's spendable balance.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	if c.key == nil {
		return nil, fmt.Errorf("chain: no signing key loaded")
	}
	bal, err := c.eth.BalanceAt(ctx, c.from, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balance of %s: %w", c.from.Hex(), err)
	}
	return bal, nil
}

// SubmitCommit builds, signs, and sends the commit transaction, then waits
// for it to be mined. The decision's urgency scales the gas tip so an
// urgent commit outbids the default tip in the same block.
func (c *Client) SubmitCommit(ctx context.Context, req domain.CommitRequest) (domain.CommitReceipt, error) {
	if c.key == nil {
		return domain.CommitReceipt{}, fmt.Errorf("chain: no signing key loaded")
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return domain.CommitReceipt{}, fmt.Errorf("chain: nonce: %w", err)
	}

	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return domain.CommitReceipt{}, fmt.Errorf("chain: suggest tip: %w", err)
	}
	tip = scaleTip(tip, req.Decision.Urgency)

	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.CommitReceipt{}, fmt.Errorf("chain: head: %w", err)
	}
	// feeCap = 2*baseFee + tip absorbs one doubling of the base fee
	// between build and inclusion.
	feeCap := new(big.Int).Add(
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		tip,
	)

	data := make([]byte, 0, 4+32)
	data = append(data, commitSelector...)
	data = append(data, common.LeftPadBytes(new(big.Int).SetUint64(req.Round).Bytes(), 32)...)

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &c.contract,
		Value: req.Amount,
		Data:  data,
	})
	if err != nil {
		return domain.CommitReceipt{}, fmt.Errorf("chain: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.contract,
		Value:     req.Amount,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return domain.CommitReceipt{}, fmt.Errorf("chain: sign: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return domain.CommitReceipt{}, fmt.Errorf("chain: send commit: %w", err)
	}

	c.logger.Info("commit sent",
		slog.String("tx", signed.Hash().Hex()),
		slog.String("request_id", req.ID),
		slog.Uint64("round", req.Round),
		slog.String("amount", req.Amount.String()),
		slog.String("tip", tip.String()),
	)

	return c.waitMined(ctx, signed.Hash())
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (domain.CommitReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, receiptWait)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return domain.CommitReceipt{}, fmt.Errorf("chain: commit %s reverted", hash.Hex())
			}
			return domain.CommitReceipt{
				TxHash:      hash,
				GasUsed:     receipt.GasUsed,
				ConfirmedAt: time.Now().UTC(),
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("receipt poll failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return domain.CommitReceipt{}, fmt.Errorf("chain: wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// scaleTip multiplies the suggested tip by the urgency factor using
// hundredths to stay in integer math. Urgency at or below zero leaves the
// tip untouched.
func scaleTip(tip *big.Int, urgency float64) *big.Int {
	if urgency <= 0 || urgency == 1.0 {
		return tip
	}
	hundredths := int64(urgency * 100)
	if hundredths < 100 {
		hundredths = 100
	}
	scaled := new(big.Int).Mul(tip, big.NewInt(hundredths))
	return scaled.Quo(scaled, big.NewInt(100))
}
