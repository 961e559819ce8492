// Package feed streams pool reserve updates over a websocket.
package feed

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"github.com/fd1az/cfmm-arb/business/liquidity/app"
	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/business/liquidity/infra/snapshot"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/logger"
	"github.com/fd1az/cfmm-arb/internal/wsconn"
)

var _ app.ReserveFeed = (*Feed)(nil)

const defaultBufferSize = 64

// Message is one reserve update on the wire.
type Message struct {
	Pool     string   `json:"pool"`
	Reserves []string `json:"reserves"`
	Block    uint64   `json:"block,omitempty"`
}

// subscribeRequest is sent after every connect.
type subscribeRequest struct {
	Method string   `json:"method"`
	Pools  []string `json:"pools,omitempty"`
}

// Feed implements app.ReserveFeed on top of wsconn.
type Feed struct {
	client *wsconn.Client
	pools  []string
	logger logger.LoggerInterface

	mu      sync.Mutex
	out     chan app.ReserveUpdate
	dropped int
}

// New creates a feed for url. pools optionally narrows the subscription.
func New(url string, pools []domain.PoolID, log logger.LoggerInterface) (*Feed, error) {
	cfg := wsconn.DefaultConfig(url, "reserve-feed")
	cfg.Logger = log
	client, err := wsconn.New(cfg)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}

	ids := make([]string, len(pools))
	for i, p := range pools {
		ids[i] = string(p)
	}
	return &Feed{client: client, pools: ids, logger: log}, nil
}

// Subscribe connects and returns the update stream.
func (f *Feed) Subscribe(ctx context.Context) (<-chan app.ReserveUpdate, error) {
	f.mu.Lock()
	if f.out != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("feed: already subscribed")
	}
	f.out = make(chan app.ReserveUpdate, defaultBufferSize)
	out := f.out
	f.mu.Unlock()

	f.client.OnMessage(func(_ context.Context, data []byte) {
		u, err := Decode(data)
		if err != nil {
			f.logger.Warn(ctx, "bad reserve message", "error", err)
			return
		}
		select {
		case out <- u:
		default:
			f.mu.Lock()
			f.dropped++
			f.mu.Unlock()
			f.logger.Warn(ctx, "reserve update dropped, consumer too slow", "pool", u.Pool)
		}
	})
	f.client.OnStateChange(func(state wsconn.State, err error) {
		if state == wsconn.StateConnected {
			go f.sendSubscribe(ctx)
		}
		f.logger.Debug(ctx, "reserve feed state", "state", string(state), "error", err)
	})

	if err := f.client.Connect(ctx); err != nil {
		f.mu.Lock()
		f.out = nil
		f.mu.Unlock()
		return nil, apperror.New(apperror.CodeWebSocketConnectionError, apperror.WithCause(err))
	}

	go func() {
		<-ctx.Done()
		// Close waits for the read loop, so nothing sends on out afterwards.
		_ = f.client.Close()
		close(out)
	}()
	return out, nil
}

func (f *Feed) sendSubscribe(ctx context.Context) {
	req := subscribeRequest{Method: "subscribe_reserves", Pools: f.pools}
	if err := f.client.SendJSON(ctx, req); err != nil {
		f.logger.Warn(ctx, "reserve subscription failed", "error", err)
	}
}

// Dropped returns how many updates were discarded because the consumer lagged.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close closes the websocket.
func (f *Feed) Close() error {
	return f.client.Close()
}

// Decode parses one wire message.
func Decode(data []byte) (app.ReserveUpdate, error) {
	var m Message
	if err := sonnet.Unmarshal(data, &m); err != nil {
		return app.ReserveUpdate{}, err
	}
	if m.Pool == "" || len(m.Reserves) < 2 {
		return app.ReserveUpdate{}, fmt.Errorf("message needs a pool and at least two reserves")
	}
	reserves := make([]*big.Int, len(m.Reserves))
	for i, s := range m.Reserves {
		r, err := snapshot.ParseReserve(s)
		if err != nil {
			return app.ReserveUpdate{}, err
		}
		reserves[i] = r
	}
	return app.ReserveUpdate{Pool: domain.PoolID(m.Pool), Reserves: reserves, Block: m.Block}, nil
}
