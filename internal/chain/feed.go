package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Contract event signatures. Leader and winner addresses ride in the
// first topic; the remaining words sit in the data blob.
var (
	topicAuctionStarted = common.BytesToHash(crypto.Keccak256([]byte("AuctionStarted(uint256,uint256,uint256,uint256,uint256)")))
	topicLeadTaken      = common.BytesToHash(crypto.Keccak256([]byte("LeadTaken(address,uint256,uint256)")))
	topicSettled        = common.BytesToHash(crypto.Keccak256([]byte("Settled(address,uint256)")))
)

// Feed subscribes to the auction contract's logs over a websocket RPC
// endpoint and converts them into domain events. Delivery is
// at-least-once: after a reconnect the node may replay recent logs, and
// the engine deduplicates settlements downstream.
type Feed struct {
	wsURL    string
	contract common.Address
	events   chan<- domain.Event

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	nextID int

	done   chan struct{}
	logger *slog.Logger
}

// NewFeed creates a Feed that pushes decoded events into out.
func NewFeed(wsURL string, contract common.Address, out chan<- domain.Event, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:    wsURL,
		contract: contract,
		events:   out,
		done:     make(chan struct{}),
		logger:   logger.With(slog.String("component", "feed")),
	}
}

// Connect establishes the websocket connection, subscribes to the
// contract's logs, and starts the read and ping loops for that
// connection. Each connection owns its loops: the loops capture the conn
// they were started with, so a reconnect never tears down or writes to
// its successor.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("chain/feed: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("chain/feed: connect: %w", err)
	}

	// Set up pong handler for keep-alive.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Subscribe before the ping loop starts so the conn never sees two
	// writers.
	if err := f.subscribeLogs(conn); err != nil {
		conn.Close()
		return fmt.Errorf("chain/feed: subscribe: %w", err)
	}

	f.conn = conn

	// stop ties the ping loop's lifetime to this connection's read loop.
	stop := make(chan struct{})
	go f.readLoop(conn, stop)
	go f.pingLoop(conn, stop)

	return nil
}

// Close shuts down the websocket connection and stops the read loop.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}

	return nil
}

// rpcRequest is an outgoing JSON-RPC 2.0 frame.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// subscribeLogs sends eth_subscribe for the contract's logs. Caller must
// hold f.mu.
func (f *Feed) subscribeLogs(conn *websocket.Conn) error {
	f.nextID++
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      f.nextID,
		Method:  "eth_subscribe",
		Params: []any{
			"logs",
			map[string]any{"address": f.contract.Hex()},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from conn and pushes the decoded
// events downstream. On disconnect it closes its own conn, stops its ping
// loop, and reconnects with exponential backoff; the replacement
// connection gets fresh loops from Connect.
func (f *Feed) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)
	defer conn.Close()

	for {
		select {
		case <-f.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}

			conn.Close()
			f.reconnect()
			return
		}

		f.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep conn alive. It exits when
// the feed closes or when conn's read loop ends, so at most one writer
// ever touches a connection.
func (f *Feed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// rpcLog is the log object inside an eth_subscription notification.
type rpcLog struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	TxHash   string   `json:"transactionHash"`
	LogIndex string   `json:"logIndex"`
	Removed  bool     `json:"removed"`
}

// handleMessage parses a raw websocket frame and pushes any decoded event
// downstream. Subscription confirmations and unparseable frames are
// dropped.
func (f *Feed) handleMessage(raw []byte) {
	var envelope struct {
		Method string `json:"method"`
		Params struct {
			Result json.RawMessage `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.Method != "eth_subscription" {
		return
	}

	var lg rpcLog
	if err := json.Unmarshal(envelope.Params.Result, &lg); err != nil {
		return
	}
	if lg.Removed {
		// Reorged-out log; the replacement block's logs follow.
		return
	}

	ev, ok := parseLog(lg, time.Now().UTC())
	if !ok {
		return
	}

	select {
	case f.events <- ev:
	case <-f.done:
	}
}

// parseLog decodes one contract log into a domain event. Logs carry no
// timestamp, so the receive time stands in; the engine's tick re-derives
// everything time-sensitive from the curve anyway.
func parseLog(lg rpcLog, at time.Time) (domain.Event, bool) {
	if len(lg.Topics) == 0 {
		return domain.Event{}, false
	}

	data, err := hexWords(lg.Data)
	if err != nil {
		return domain.Event{}, false
	}

	ev := domain.Event{
		At:       at,
		TxHash:   common.HexToHash(lg.TxHash),
		LogIndex: uint(hexUint(lg.LogIndex)),
	}

	switch common.HexToHash(lg.Topics[0]) {
	case topicAuctionStarted:
		// round, startPrice, floorPrice, decayStart, duration
		if len(data) < 5 {
			return domain.Event{}, false
		}
		ev.Kind = domain.EventAuctionStarted
		ev.Round = data[0].Uint64()
		ev.Curve = domain.Curve{
			Start:      data[1],
			Floor:      data[2],
			DecayStart: time.Unix(data[3].Int64(), 0).UTC(),
			Duration:   time.Duration(data[4].Int64()) * time.Second,
		}

	case topicLeadTaken:
		// leader indexed; paid, rate in data
		if len(lg.Topics) < 2 || len(data) < 2 {
			return domain.Event{}, false
		}
		ev.Kind = domain.EventLeadTaken
		ev.Leader = common.BytesToAddress(common.HexToHash(lg.Topics[1]).Bytes())
		ev.Paid = data[0]
		ev.Rate = data[1]

	case topicSettled:
		// winner indexed; price in data
		if len(lg.Topics) < 2 || len(data) < 1 {
			return domain.Event{}, false
		}
		ev.Kind = domain.EventSettled
		ev.Leader = common.BytesToAddress(common.HexToHash(lg.Topics[1]).Bytes())
		ev.Price = data[0]

	default:
		return domain.Event{}, false
	}

	return ev, true
}

// hexWords splits a 0x-prefixed data blob into 32-byte big.Int words.
func hexWords(s string) ([]*big.Int, error) {
	raw := common.FromHex(s)
	if len(raw)%32 != 0 {
		return nil, fmt.Errorf("data length %d not word-aligned", len(raw))
	}
	words := make([]*big.Int, 0, len(raw)/32)
	for i := 0; i < len(raw); i += 32 {
		words = append(words, new(big.Int).SetBytes(raw[i:i+32]))
	}
	return words, nil
}

func hexUint(s string) uint64 {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || !n.IsUint64() {
		return 0
	}
	return n.Uint64()
}

// reconnect attempts to re-establish the websocket connection with
// exponential backoff. It blocks until successful or the feed is closed.
func (f *Feed) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-f.done:
			return
		case <-time.After(delay):
		}

		f.logger.Info("reconnecting", slog.Duration("delay", delay))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := f.Connect(ctx)
		cancel()
		if err == nil {
			f.logger.Info("reconnected")
			return
		}

		f.logger.Warn("reconnect failed", slog.String("error", err.Error()))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
