package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

func wordsHex(vals ...int64) string {
	buf := make([]byte, 0, 32*len(vals))
	for _, v := range vals {
		buf = append(buf, common.LeftPadBytes(big.NewInt(v).Bytes(), 32)...)
	}
	return "0x" + hex.EncodeToString(buf)
}

func addressTopic(addr common.Address) string {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32)).Hex()
}

func TestParseLog_AuctionStarted(t *testing.T) {
	at := time.Unix(1_700_100_000, 0).UTC()
	lg := rpcLog{
		Topics:   []string{topicAuctionStarted.Hex()},
		Data:     wordsHex(7, 20_000, 1_000, 1_700_000_000, 3_600),
		TxHash:   "0xaaaa",
		LogIndex: "0x2",
	}

	ev, ok := parseLog(lg, at)
	if !ok {
		t.Fatal("expected a decoded event")
	}
	if ev.Kind != domain.EventAuctionStarted {
		t.Fatalf("kind: got %s", ev.Kind)
	}
	if ev.Round != 7 {
		t.Fatalf("round: got %d want 7", ev.Round)
	}
	if ev.Curve.Start.Cmp(big.NewInt(20_000)) != 0 || ev.Curve.Floor.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("curve bounds: got %s..%s", ev.Curve.Floor, ev.Curve.Start)
	}
	if ev.Curve.Duration != time.Hour {
		t.Fatalf("duration: got %v want 1h", ev.Curve.Duration)
	}
	if !ev.Curve.DecayStart.Equal(time.Unix(1_700_000_000, 0).UTC()) {
		t.Fatalf("decay start: got %v", ev.Curve.DecayStart)
	}
	if ev.LogIndex != 2 {
		t.Fatalf("log index: got %d want 2", ev.LogIndex)
	}
}

func TestParseLog_LeadTaken(t *testing.T) {
	leader := common.HexToAddress("0x4444444444444444444444444444444444444444")
	lg := rpcLog{
		Topics: []string{topicLeadTaken.Hex(), addressTopic(leader)},
		Data:   wordsHex(15_000, 10),
	}

	ev, ok := parseLog(lg, time.Now())
	if !ok {
		t.Fatal("expected a decoded event")
	}
	if ev.Kind != domain.EventLeadTaken {
		t.Fatalf("kind: got %s", ev.Kind)
	}
	if ev.Leader != leader {
		t.Fatalf("leader: got %s", ev.Leader.Hex())
	}
	if ev.Paid.Cmp(big.NewInt(15_000)) != 0 || ev.Rate.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("paid/rate: got %s/%s", ev.Paid, ev.Rate)
	}
}

func TestParseLog_Settled(t *testing.T) {
	winner := common.HexToAddress("0x5555555555555555555555555555555555555555")
	lg := rpcLog{
		Topics:   []string{topicSettled.Hex(), addressTopic(winner)},
		Data:     wordsHex(12_500),
		TxHash:   "0xbbbb",
		LogIndex: "0x7",
	}

	ev, ok := parseLog(lg, time.Now())
	if !ok {
		t.Fatal("expected a decoded event")
	}
	if ev.Kind != domain.EventSettled {
		t.Fatalf("kind: got %s", ev.Kind)
	}
	if ev.Leader != winner {
		t.Fatalf("winner: got %s", ev.Leader.Hex())
	}
	if ev.Price.Cmp(big.NewInt(12_500)) != 0 {
		t.Fatalf("price: got %s", ev.Price)
	}
	if got := ev.DedupKey(); got == "" {
		t.Fatal("settlement must carry a dedup key")
	}
}

func TestParseLog_Rejects(t *testing.T) {
	cases := []struct {
		name string
		lg   rpcLog
	}{
		{"no topics", rpcLog{}},
		{"unknown topic", rpcLog{Topics: []string{common.HexToHash("0x1").Hex()}, Data: wordsHex(1)}},
		{"misaligned data", rpcLog{Topics: []string{topicSettled.Hex()}, Data: "0xdead"}},
		{"lead taken without leader topic", rpcLog{Topics: []string{topicLeadTaken.Hex()}, Data: wordsHex(1, 2)}},
		{"started with short data", rpcLog{Topics: []string{topicAuctionStarted.Hex()}, Data: wordsHex(1, 2)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := parseLog(tc.lg, time.Now()); ok {
				t.Fatal("expected rejection")
			}
		})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// settledFrame builds the eth_subscription envelope a node would push for
// one Settled log.
func settledFrame(price int64) []byte {
	winner := common.HexToAddress("0x4444444444444444444444444444444444444444")
	frame := map[string]any{
		"method": "eth_subscription",
		"params": map[string]any{
			"result": rpcLog{
				Topics:   []string{topicSettled.Hex(), addressTopic(winner)},
				Data:     wordsHex(price),
				TxHash:   "0xbbbb",
				LogIndex: "0x1",
			},
		},
	}
	data, _ := json.Marshal(frame)
	return data
}

// A dropped connection must not take its replacement down with it: the
// old read loop owns only the conn it started with, and events keep
// flowing on the reconnected one.
func TestFeed_ReconnectSurvivesOldLoopTeardown(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect backoff makes this test slow")
	}

	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	conns := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		// Consume the eth_subscribe request, then deliver one log.
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		if err := c.WriteMessage(websocket.TextMessage, settledFrame(int64(1000*n))); err != nil {
			return
		}
		if n == 1 {
			// Simulate the node dropping the first connection.
			c.Close()
			return
		}
		// Keep the replacement open until the client closes it.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan domain.Event, 8)
	feed := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), common.Address{}, events, discardLogger())

	if err := feed.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer feed.Close()

	want := []int64{1000, 2000}
	for i, price := range want {
		select {
		case ev := <-events:
			if ev.Kind != domain.EventSettled {
				t.Fatalf("event %d: kind %s", i, ev.Kind)
			}
			if ev.Price.Cmp(big.NewInt(price)) != 0 {
				t.Fatalf("event %d: price %s want %d", i, ev.Price, price)
			}
		case <-time.After(15 * time.Second):
			t.Fatalf("event %d never delivered", i)
		}
	}
}

func TestScaleTip(t *testing.T) {
	cases := []struct {
		name    string
		tip     int64
		urgency float64
		want    int64
	}{
		{"zero urgency keeps tip", 100, 0, 100},
		{"unit urgency keeps tip", 100, 1.0, 100},
		{"double", 100, 2.0, 200},
		{"half up-clamps to tip", 100, 0.5, 100},
		{"fractional", 100, 1.25, 125},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scaleTip(big.NewInt(tc.tip), tc.urgency)
			if got.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("scaleTip(%d, %g) = %s, want %d", tc.tip, tc.urgency, got, tc.want)
			}
		})
	}
}
