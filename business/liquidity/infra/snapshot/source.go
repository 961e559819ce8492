package snapshot

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/asset"
	"github.com/fd1az/cfmm-arb/internal/httpclient"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

const tracerName = "github.com/fd1az/cfmm-arb/business/liquidity/infra/snapshot"

// Source implements app.PoolSource over a file path or an http(s) URL.
type Source struct {
	location   string
	client     *httpclient.Client
	assets     *asset.Registry
	defaultFee decimal.Decimal
	logger     logger.LoggerInterface
}

// NewSource creates a snapshot source. client is required only for http(s) locations.
func NewSource(location string, client *httpclient.Client, assets *asset.Registry, defaultFee decimal.Decimal, log logger.LoggerInterface) (*Source, error) {
	if location == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("snapshot location is empty"))
	}
	if isRemote(location) && client == nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("http snapshot needs a client"))
	}
	if assets == nil {
		assets = asset.DefaultRegistry()
	}
	return &Source{
		location:   location,
		client:     client,
		assets:     assets,
		defaultFee: defaultFee,
		logger:     log,
	}, nil
}

// Name identifies the source.
func (s *Source) Name() string {
	return "snapshot:" + s.location
}

// Load reads and decodes the snapshot, registering its token table.
func (s *Source) Load(ctx context.Context) ([]*domain.Pool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "snapshot.Load")
	defer span.End()
	span.SetAttributes(attribute.String("snapshot.location", s.location))

	data, err := s.read(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, err
	}

	doc, err := Parse(data, FormatFor(s.location))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, err
	}
	if err := doc.RegisterTokens(s.assets); err != nil {
		return nil, err
	}
	pools, err := doc.ToPools(s.assets, s.defaultFee)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "convert failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("snapshot.pools", len(pools)), attribute.Int64("snapshot.block", int64(doc.Block)))
	s.logger.Debug(ctx, "snapshot decoded", "location", s.location, "pools", len(pools), "block", doc.Block)
	return pools, nil
}

func (s *Source) read(ctx context.Context) ([]byte, error) {
	if isRemote(s.location) {
		resp, err := s.client.Get(ctx, s.location)
		if err != nil {
			return nil, apperror.New(apperror.CodeSnapshotLoadFailed,
				apperror.WithContext(s.location), apperror.WithCause(err))
		}
		return resp.Body, nil
	}

	data, err := os.ReadFile(s.location)
	if err != nil {
		return nil, apperror.New(apperror.CodeSnapshotLoadFailed,
			apperror.WithContext(fmt.Sprintf("read %s", s.location)), apperror.WithCause(err))
	}
	return data, nil
}

// WriteFile encodes doc to path, choosing the format from the extension.
func WriteFile(path string, doc *Document) error {
	data, err := Encode(doc, FormatFor(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
