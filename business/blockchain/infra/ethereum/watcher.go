// Package ethereum watches chain heads over go-ethereum clients.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arb/business/blockchain/app"
	"github.com/fd1az/cfmm-arb/business/blockchain/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/circuitbreaker"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/cfmm-arb/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/cfmm-arb/business/blockchain/infra/ethereum"
)

var _ app.HeadSource = (*Watcher)(nil)

// HeaderReader is the polling side of an ethclient.Client.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// WatcherConfig holds configuration for the head watcher.
type WatcherConfig struct {
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (fallback)
	PollInterval   time.Duration // polling interval for the HTTP fallback
	ReconnectDelay time.Duration // delay before redialling WS when there is no fallback
	BufferSize     int
}

// DefaultWatcherConfig returns defaults for the given endpoints.
func DefaultWatcherConfig(wsURL, httpURL string, poll time.Duration) WatcherConfig {
	if poll <= 0 {
		poll = 12 * time.Second
	}
	return WatcherConfig{
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   poll,
		ReconnectDelay: 5 * time.Second,
		BufferSize:     16,
	}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithHeaderReader polls r instead of dialling HTTPURL.
func WithHeaderReader(r HeaderReader) Option {
	return func(w *Watcher) { w.poller = r }
}

type watcherMetrics struct {
	heads           metric.Int64Counter
	subscribeErrors metric.Int64Counter
	connectionState metric.Int64Gauge
	headLatency     metric.Float64Histogram
	fallbacks       metric.Int64Counter
}

// Watcher emits new chain heads. It subscribes over WebSocket when configured and falls
// back to polling the latest header over HTTP.
type Watcher struct {
	config WatcherConfig
	logger logger.LoggerInterface

	clientMu sync.RWMutex
	ws       *ethclient.Client
	poller   HeaderReader
	dialed   *ethclient.Client

	stateMu    sync.RWMutex
	state      domain.ConnectionState
	lastSeen   time.Time
	onStatus   func(connected bool, latency time.Duration)
	polling    atomic.Bool
	lastBlock  atomic.Uint64
	reconnects atomic.Int32

	blocks  chan *domain.Block
	done    chan struct{}
	started atomic.Bool
	closed  atomic.Bool

	breaker *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *watcherMetrics
}

// NewWatcher creates a head watcher.
func NewWatcher(cfg WatcherConfig, log logger.LoggerInterface, opts ...Option) (*Watcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	w := &Watcher{
		config: cfg,
		logger: log,
		state:  domain.StateDisconnected,
		blocks: make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	bcfg := circuitbreaker.DefaultConfig("eth-heads")
	bcfg.OnStateChange = func(name string, from, to gobreaker.State) {
		w.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	w.breaker = circuitbreaker.New[*types.Header](bcfg)

	return w, nil
}

func (w *Watcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	w.metrics = &watcherMetrics{}

	w.metrics.heads, err = meter.Int64Counter(
		"eth_heads_received_total",
		metric.WithDescription("Total new chain heads emitted"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	w.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total head subscription and poll errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	w.metrics.connectionState, err = meter.Int64Gauge(
		"eth_connection_state",
		metric.WithDescription("Node connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	w.metrics.headLatency, err = meter.Float64Histogram(
		"eth_head_latency_ms",
		metric.WithDescription("Latency from block timestamp to receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	w.metrics.fallbacks, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times the HTTP polling fallback took over"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

// OnStatus registers fn for connection changes and per-head latency.
func (w *Watcher) OnStatus(fn func(connected bool, latency time.Duration)) {
	w.stateMu.Lock()
	w.onStatus = fn
	w.stateMu.Unlock()
}

// Subscribe starts the watch loop. Calling it again returns the same channel.
func (w *Watcher) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	ctx, span := w.tracer.Start(ctx, "eth.subscribe",
		trace.WithAttributes(
			attribute.Bool("ws", w.config.WSURL != ""),
			attribute.Bool("http", w.config.HTTPURL != "" || w.poller != nil),
		),
	)
	defer span.End()

	if w.closed.Load() {
		err := errors.New("watcher is closed")
		span.RecordError(err)
		return nil, err
	}
	if !w.started.CompareAndSwap(false, true) {
		return w.blocks, nil
	}

	w.setState(domain.StateConnecting)

	ws, wsErr := w.dialWS(ctx)
	if wsErr != nil {
		if w.config.WSURL != "" {
			w.logger.Warn(ctx, "ws dial failed, trying http fallback", "error", wsErr)
			span.AddEvent("ws_failed_trying_http")
		}
		if err := w.ensurePoller(ctx); err != nil {
			w.started.Store(false)
			w.setState(domain.StateDisconnected)
			span.RecordError(err)
			span.SetStatus(codes.Error, "no endpoint reachable")
			return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithCause(errors.Join(wsErr, err)),
				apperror.WithContext("failed to connect via WS and HTTP"))
		}
		w.polling.Store(true)
		go w.loop(ctx, nil)
	} else {
		go w.loop(ctx, ws)
	}

	span.SetStatus(codes.Ok, "subscribed")
	return w.blocks, nil
}

func (w *Watcher) dialWS(ctx context.Context) (*ethclient.Client, error) {
	if w.config.WSURL == "" {
		return nil, errors.New("ws url not configured")
	}
	client, err := ethclient.DialContext(ctx, w.config.WSURL)
	if err != nil {
		return nil, fmt.Errorf("dial ws: %w", err)
	}
	w.clientMu.Lock()
	w.ws = client
	w.clientMu.Unlock()
	return client, nil
}

func (w *Watcher) ensurePoller(ctx context.Context) error {
	w.clientMu.Lock()
	defer w.clientMu.Unlock()
	if w.poller != nil {
		return nil
	}
	if w.config.HTTPURL == "" {
		return errors.New("http url not configured")
	}
	client, err := ethclient.DialContext(ctx, w.config.HTTPURL)
	if err != nil {
		return fmt.Errorf("dial http: %w", err)
	}
	w.dialed = client
	w.poller = client
	return nil
}

// loop owns the blocks channel: it is the only sender and closes it on exit.
func (w *Watcher) loop(ctx context.Context, ws *ethclient.Client) {
	defer close(w.blocks)
	defer w.setState(domain.StateDisconnected)

	for ws != nil {
		err := w.follow(ctx, ws)
		if w.stopped(ctx) {
			return
		}
		w.metrics.subscribeErrors.Add(ctx, 1)
		w.logger.Warn(ctx, "head subscription lost", "error", err)

		if w.ensurePoller(ctx) == nil {
			w.metrics.fallbacks.Add(ctx, 1)
			w.polling.Store(true)
			break
		}

		w.setState(domain.StateReconnecting)
		w.reconnects.Add(1)
		ws = nil
		for ws == nil {
			if !w.sleep(ctx, w.config.ReconnectDelay) {
				return
			}
			if ws, err = w.dialWS(ctx); err != nil {
				w.logger.Warn(ctx, "ws redial failed", "error", err)
			}
		}
	}

	w.poll(ctx)
}

// follow consumes the WS head subscription until it fails or the watcher stops.
func (w *Watcher) follow(ctx context.Context, client *ethclient.Client) error {
	headers := make(chan *types.Header, w.config.BufferSize)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("subscribe new head: %w", err)
	}
	defer sub.Unsubscribe()

	w.setState(domain.StateConnected)
	w.logger.Info(ctx, "subscribed to new heads via ws")

	for {
		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case h := <-headers:
			if h != nil {
				w.emit(ctx, h, false)
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	w.logger.Info(ctx, "polling heads over http", "interval", w.config.PollInterval)
	w.setState(domain.StateConnected)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.pollOnce(ctx)
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	ctx, span := w.tracer.Start(ctx, "eth.poll.head")
	defer span.End()

	w.clientMu.RLock()
	poller := w.poller
	w.clientMu.RUnlock()

	header, err := w.breaker.Execute(func() (*types.Header, error) {
		return poller.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		span.RecordError(err)
		w.metrics.subscribeErrors.Add(ctx, 1)
		w.logger.Warn(ctx, "head poll failed", "error", err)
		return
	}
	w.emit(ctx, header, true)
}

// emit forwards h when it is newer than anything seen so far.
func (w *Watcher) emit(ctx context.Context, h *types.Header, polled bool) {
	if h.Number == nil || h.Number.Uint64() <= w.lastBlock.Load() {
		return
	}
	block := toBlock(h)
	w.lastBlock.Store(block.Number)

	now := time.Now()
	latency := block.Age(now)
	w.metrics.headLatency.Record(ctx, float64(latency.Milliseconds()),
		metric.WithAttributes(attribute.Bool("polled", polled)))

	w.stateMu.Lock()
	w.lastSeen = now
	notify := w.onStatus
	w.stateMu.Unlock()
	if notify != nil {
		notify(true, latency)
	}

	select {
	case w.blocks <- block:
		w.metrics.heads.Add(ctx, 1)
		w.logger.Debug(ctx, "new head", "number", block.Number, "latency_ms", latency.Milliseconds())
	default:
		w.logger.Warn(ctx, "head dropped, buffer full", "number", block.Number)
	}
}

func toBlock(h *types.Header) *domain.Block {
	return &domain.Block{
		Number:     h.Number.Uint64(),
		Hash:       h.Hash(),
		ParentHash: h.ParentHash,
		Timestamp:  time.Unix(int64(h.Time), 0),
		BaseFee:    h.BaseFee,
	}
}

// LatestBlock fetches the current head over whichever client is connected.
func (w *Watcher) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := w.tracer.Start(ctx, "eth.latest_block")
	defer span.End()

	w.clientMu.RLock()
	var reader HeaderReader
	if w.ws != nil && !w.polling.Load() {
		reader = w.ws
	} else if w.poller != nil {
		reader = w.poller
	}
	w.clientMu.RUnlock()

	if reader == nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithContext("no ethereum client connected"))
	}

	header, err := w.breaker.Execute(func() (*types.Header, error) {
		return reader.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch latest block"))
	}

	span.SetStatus(codes.Ok, "fetched")
	return toBlock(header), nil
}

// Status returns the current watcher status.
func (w *Watcher) Status() domain.Status {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return domain.Status{
		State:      w.state,
		LastBlock:  w.lastBlock.Load(),
		LastSeen:   w.lastSeen,
		Reconnects: int(w.reconnects.Load()),
		Polling:    w.polling.Load(),
	}
}

// Close stops the watch loop and closes dialled clients.
func (w *Watcher) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.done)

	w.clientMu.Lock()
	if w.ws != nil {
		w.ws.Close()
		w.ws = nil
	}
	if w.dialed != nil {
		w.dialed.Close()
		w.dialed = nil
	}
	w.clientMu.Unlock()

	if !w.started.Load() {
		close(w.blocks)
	}
	return nil
}

func (w *Watcher) stopped(ctx context.Context) bool {
	return w.closed.Load() || ctx.Err() != nil
}

func (w *Watcher) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Watcher) setState(state domain.ConnectionState) {
	w.stateMu.Lock()
	changed := w.state != state
	w.state = state
	notify := w.onStatus
	w.stateMu.Unlock()

	w.metrics.connectionState.Record(context.Background(), state.Gauge())
	if changed && notify != nil && state != domain.StateConnected {
		notify(false, 0)
	}
}
