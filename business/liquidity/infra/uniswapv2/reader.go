// Package uniswapv2 reads Uniswap V2 pair state over JSON-RPC and exposes it as a pool source.
package uniswapv2

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arb/business/liquidity/app"
	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/asset"
	"github.com/fd1az/cfmm-arb/internal/cache"
	"github.com/fd1az/cfmm-arb/internal/circuitbreaker"
	"github.com/fd1az/cfmm-arb/internal/logger"
	"github.com/fd1az/cfmm-arb/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/cfmm-arb/business/liquidity/infra/uniswapv2"
	meterName  = "github.com/fd1az/cfmm-arb/business/liquidity/infra/uniswapv2"

	// Pair token addresses never change, so they are cached for a long time.
	tokenCacheTTL = 24 * time.Hour
)

var _ app.PoolSource = (*Reader)(nil)

// Config holds reader settings.
type Config struct {
	Pairs             []common.Address
	Fee               decimal.Decimal
	RequestsPerSecond float64
	CacheTTL          time.Duration
}

type pairTokens struct {
	token0, token1 common.Address
}

type readerMetrics struct {
	calls      metric.Int64Counter
	callErrors metric.Int64Counter
	loadTime   metric.Float64Histogram
}

// Reader implements app.PoolSource for a fixed list of Uniswap V2 pairs.
type Reader struct {
	caller  ethereum.ContractCaller
	config  Config
	pairABI abi.ABI
	ercABI  abi.ABI

	assets  *asset.Registry
	tokens  *cache.Cache[common.Address, pairTokens]
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *readerMetrics
}

// NewReader creates a reader. caller is usually an *ethclient.Client.
func NewReader(caller ethereum.ContractCaller, cfg Config, assets *asset.Registry, log logger.LoggerInterface) (*Reader, error) {
	if caller == nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("uniswapv2 reader needs an RPC client"))
	}
	if len(cfg.Pairs) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("uniswapv2 reader needs at least one pair"))
	}
	pairABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	ercABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	if assets == nil {
		assets = asset.DefaultRegistry()
	}
	if cfg.Fee.IsZero() {
		cfg.Fee = decimal.RequireFromString("0.997")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = tokenCacheTTL
	}

	r := &Reader{
		caller:  caller,
		config:  cfg,
		pairABI: pairABI,
		ercABI:  ercABI,
		assets:  assets,
		tokens:  cache.New[common.Address, pairTokens](time.Minute),
		cb:      circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("uniswapv2-rpc")),
		limiter: ratelimit.New(cfg.RequestsPerSecond, 10),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return r, nil
}

func (r *Reader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	r.metrics = &readerMetrics{}

	r.metrics.calls, err = meter.Int64Counter("uniswapv2_calls_total",
		metric.WithDescription("Total pair contract calls"))
	if err != nil {
		return err
	}
	r.metrics.callErrors, err = meter.Int64Counter("uniswapv2_call_errors_total",
		metric.WithDescription("Total failed pair contract calls"))
	if err != nil {
		return err
	}
	r.metrics.loadTime, err = meter.Float64Histogram("uniswapv2_load_latency_ms",
		metric.WithDescription("Snapshot load latency in milliseconds"),
		metric.WithUnit("ms"))
	return err
}

// Name identifies the source.
func (r *Reader) Name() string {
	return fmt.Sprintf("uniswapv2:%d pairs", len(r.config.Pairs))
}

// Load reads every configured pair. A pair that fails is logged and skipped; the load fails
// only when no pair could be read.
func (r *Reader) Load(ctx context.Context) ([]*domain.Pool, error) {
	ctx, span := r.tracer.Start(ctx, "uniswapv2.Load",
		trace.WithAttributes(attribute.Int("pairs", len(r.config.Pairs))))
	defer span.End()
	start := time.Now()

	pools := make([]*domain.Pool, 0, len(r.config.Pairs))
	var lastErr error
	for _, pair := range r.config.Pairs {
		p, err := r.ReadPair(ctx, pair)
		if err != nil {
			lastErr = err
			r.logger.Warn(ctx, "pair read failed", "pair", pair.Hex(), "error", err)
			continue
		}
		pools = append(pools, p)
	}
	r.metrics.loadTime.Record(ctx, float64(time.Since(start).Milliseconds()))

	if len(pools) == 0 && lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "no pair readable")
		return nil, apperror.New(apperror.CodeSnapshotLoadFailed,
			apperror.WithContext("no uniswap v2 pair could be read"), apperror.WithCause(lastErr))
	}
	span.SetAttributes(attribute.Int("pools", len(pools)))
	r.logger.Debug(ctx, "pairs loaded",
		"pools", len(pools),
		"token_cache_hit_rate", r.tokens.HitRate(),
	)
	return pools, nil
}

// ReadPair reads tokens and reserves of one pair into a constant-product pool.
func (r *Reader) ReadPair(ctx context.Context, pair common.Address) (*domain.Pool, error) {
	toks, err := r.pairTokens(ctx, pair)
	if err != nil {
		return nil, err
	}

	out, err := r.call(ctx, pair, r.pairABI, "getReserves")
	if err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext(fmt.Sprintf("getReserves on %s returned %d values", pair.Hex(), len(out))))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected getReserves output types"))
	}

	dec0, err := r.decimals(ctx, toks.token0)
	if err != nil {
		return nil, err
	}
	dec1, err := r.decimals(ctx, toks.token1)
	if err != nil {
		return nil, err
	}

	id := domain.PoolID(strings.ToLower(pair.Hex()))
	return domain.NewConstantProduct(id, toks.token0, toks.token1, r0, r1, dec0, dec1, r.config.Fee), nil
}

func (r *Reader) pairTokens(ctx context.Context, pair common.Address) (pairTokens, error) {
	if t, ok := r.tokens.Get(ctx, pair); ok {
		return t, nil
	}

	var t pairTokens
	for i, method := range []string{"token0", "token1"} {
		out, err := r.call(ctx, pair, r.pairABI, method)
		if err != nil {
			return pairTokens{}, err
		}
		addr, ok := out[0].(common.Address)
		if !ok {
			return pairTokens{}, apperror.New(apperror.CodeContractCallFailed,
				apperror.WithContext(fmt.Sprintf("%s on %s returned %T", method, pair.Hex(), out[0])))
		}
		if i == 0 {
			t.token0 = addr
		} else {
			t.token1 = addr
		}
	}
	r.tokens.Set(ctx, pair, t, r.config.CacheTTL)
	return t, nil
}

// decimals resolves token decimals from the asset registry, falling back to the contract.
// Contract lookups are registered so later loads hit the registry.
func (r *Reader) decimals(ctx context.Context, token common.Address) (uint8, error) {
	if a, ok := r.assets.Get(token); ok {
		return a.Decimals(), nil
	}

	out, err := r.call(ctx, token, r.ercABI, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext(fmt.Sprintf("decimals on %s returned %T", token.Hex(), out[0])))
	}

	symbol := token.Hex()[:8]
	if out, err := r.call(ctx, token, r.ercABI, "symbol"); err == nil {
		if s, ok := out[0].(string); ok && s != "" {
			symbol = s
		}
	}
	if a, err := asset.NewAsset(token, symbol, dec); err == nil {
		r.assets.Register(a)
	}
	return dec, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, contract abi.ABI, method string) ([]any, error) {
	data, err := contract.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}

	r.metrics.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
	raw, err := r.cb.Execute(func() ([]byte, error) {
		return r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		r.metrics.callErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
		if apperror.HasCode(err, apperror.CodeCircuitOpen) {
			return nil, err
		}
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s on %s", method, to.Hex())))
	}

	out, err := contract.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("failed to decode %s", method)))
	}
	return out, nil
}

// Close stops the token cache janitor.
func (r *Reader) Close() {
	r.tokens.Close()
}
