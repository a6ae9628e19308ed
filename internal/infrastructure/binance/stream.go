package binance

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsBaseURL = "wss://stream.binance.com:9443/stream?streams="

// Stream keeps a live last-price cache fed by the combined miniTicker
// websocket stream. The adapter consults it before falling back to REST, so
// the scheduler's per-pass price fetches do not burn request weight. It is a
// best-effort cache: a dropped connection reconnects in the background and
// readers simply miss until data flows again.
type Stream struct {
	symbols []string

	mu     sync.RWMutex
	prices map[string]string // symbol -> raw last price
	seen   map[string]time.Time
}

func NewStream(symbols []string) *Stream {
	up := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s != "" {
			up = append(up, strings.ToUpper(s))
		}
	}
	return &Stream{
		symbols: up,
		prices:  make(map[string]string),
		seen:    make(map[string]time.Time),
	}
}

// Run blocks, reading ticker frames and reconnecting on failure, until the
// context is canceled.
func (s *Stream) Run(ctx context.Context) {
	if len(s.symbols) == 0 {
		return
	}

	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@miniTicker"
	}
	u := wsBaseURL + strings.Join(streams, "/")

	for ctx.Err() == nil {
		if err := s.consume(ctx, u); err != nil && ctx.Err() == nil {
			log.Printf("[stream] connection lost: %v, reconnecting", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Stream) consume(ctx context.Context, u string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[stream] connected, %d symbols", len(s.symbols))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame struct {
			Data struct {
				Symbol string `json:"s"`
				Close  string `json:"c"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil || frame.Data.Symbol == "" {
			continue
		}

		s.mu.Lock()
		s.prices[frame.Data.Symbol] = frame.Data.Close
		s.seen[frame.Data.Symbol] = time.Now()
		s.mu.Unlock()
	}
}

// LastPrice returns the cached raw price for a symbol. Entries older than a
// minute are treated as stale and skipped so a dead stream cannot feed the
// engine frozen prices.
func (s *Stream) LastPrice(symbol string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	if !ok {
		return "", false
	}
	if time.Since(s.seen[symbol]) > time.Minute {
		return "", false
	}
	return price, true
}
