// Package snapshot loads pool snapshots from JSON or YAML files and HTTP endpoints.
package snapshot

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"
	"gopkg.in/yaml.v3"

	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/asset"
)

// Format is the snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a path or URL suffix, defaulting to JSON.
func FormatFor(location string) Format {
	l := strings.ToLower(location)
	if i := strings.IndexAny(l, "?#"); i >= 0 {
		l = l[:i]
	}
	if strings.HasSuffix(l, ".yaml") || strings.HasSuffix(l, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

// TokenRecord is optional token metadata.
type TokenRecord struct {
	Address  string `json:"address" yaml:"address"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// PoolRecord is one pool as written in a snapshot. Reserves are raw integers in decimal or
// 0x-hex notation.
type PoolRecord struct {
	ID       string   `json:"id" yaml:"id"`
	Kind     string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Tokens   []string `json:"tokens" yaml:"tokens"`
	Reserves []string `json:"reserves" yaml:"reserves"`
	Decimals []int    `json:"decimals,omitempty" yaml:"decimals,omitempty"`
	Fee      string   `json:"fee,omitempty" yaml:"fee,omitempty"`
	Tax      string   `json:"tax,omitempty" yaml:"tax,omitempty"`
	Weights  []string `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// Document is a full snapshot.
type Document struct {
	Block  uint64        `json:"block,omitempty" yaml:"block,omitempty"`
	Tokens []TokenRecord `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Pools  []PoolRecord  `json:"pools" yaml:"pools"`
}

// Parse decodes a snapshot document.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = sonnet.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, apperror.New(apperror.CodeSnapshotLoadFailed,
			apperror.WithContext(fmt.Sprintf("decode %s", format)), apperror.WithCause(err))
	}
	return &doc, nil
}

// Encode writes a document in the given format.
func Encode(doc *Document, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	return sonnet.Marshal(doc)
}

// RegisterTokens adds the document's token table to assets.
func (d *Document) RegisterTokens(assets *asset.Registry) error {
	for _, tr := range d.Tokens {
		addr, err := parseAddress(tr.Address)
		if err != nil {
			return err
		}
		if tr.Decimals < 0 || tr.Decimals > asset.MaxDecimals {
			return fail("token %s: decimals %d out of range", tr.Address, tr.Decimals)
		}
		a, err := asset.NewAsset(addr, tr.Symbol, uint8(tr.Decimals))
		if err != nil {
			return fail("token %s: %v", tr.Address, err)
		}
		assets.Register(a)
	}
	return nil
}

// ToPools converts records to domain pools. Decimals missing from a record are taken from
// assets. defaultFee applies to records without a fee. The pools are not validated here.
func (d *Document) ToPools(assets *asset.Registry, defaultFee decimal.Decimal) ([]*domain.Pool, error) {
	pools := make([]*domain.Pool, 0, len(d.Pools))
	for i, rec := range d.Pools {
		p, err := rec.toPool(assets, defaultFee)
		if err != nil {
			return nil, fail("pool %d (%s): %v", i, rec.ID, err)
		}
		pools = append(pools, p)
	}
	return pools, nil
}

func (rec PoolRecord) toPool(assets *asset.Registry, defaultFee decimal.Decimal) (*domain.Pool, error) {
	kind, err := domain.ParseKind(rec.Kind)
	if err != nil {
		return nil, err
	}
	if len(rec.Reserves) != len(rec.Tokens) {
		return nil, fmt.Errorf("%d tokens but %d reserves", len(rec.Tokens), len(rec.Reserves))
	}
	if len(rec.Decimals) != 0 && len(rec.Decimals) != len(rec.Tokens) {
		return nil, fmt.Errorf("%d tokens but %d decimals", len(rec.Tokens), len(rec.Decimals))
	}

	p := &domain.Pool{
		ID:       domain.PoolID(rec.ID),
		Kind:     kind,
		Tokens:   make([]domain.Token, len(rec.Tokens)),
		Reserves: make([]*big.Int, len(rec.Tokens)),
		Decimals: make([]uint8, len(rec.Tokens)),
		Fee:      defaultFee,
	}
	for i, s := range rec.Tokens {
		if p.Tokens[i], err = parseAddress(s); err != nil {
			return nil, err
		}
		if p.Reserves[i], err = ParseReserve(rec.Reserves[i]); err != nil {
			return nil, err
		}
		if len(rec.Decimals) > 0 {
			if rec.Decimals[i] < 0 || rec.Decimals[i] > asset.MaxDecimals {
				return nil, fmt.Errorf("decimals %d out of range", rec.Decimals[i])
			}
			p.Decimals[i] = uint8(rec.Decimals[i])
		} else {
			p.Decimals[i] = assets.Resolve(p.Tokens[i]).Decimals()
		}
	}

	if rec.Fee != "" {
		if p.Fee, err = decimal.NewFromString(rec.Fee); err != nil {
			return nil, fmt.Errorf("fee: %w", err)
		}
	}
	if rec.Tax != "" {
		if p.Tax, err = decimal.NewFromString(rec.Tax); err != nil {
			return nil, fmt.Errorf("tax: %w", err)
		}
	}
	for _, w := range rec.Weights {
		dw, err := decimal.NewFromString(w)
		if err != nil {
			return nil, fmt.Errorf("weight: %w", err)
		}
		p.Weights = append(p.Weights, dw)
	}
	return p, nil
}

// FromPools builds a document from domain pools, e.g. to dump an on-chain read.
func FromPools(block uint64, pools []*domain.Pool, assets *asset.Registry) *Document {
	doc := &Document{Block: block}
	seen := make(map[domain.Token]struct{})
	for _, p := range pools {
		rec := PoolRecord{ID: string(p.ID), Kind: p.Kind.String(), Fee: p.Fee.String()}
		if !p.Tax.IsZero() {
			rec.Tax = p.Tax.String()
		}
		for i, t := range p.Tokens {
			rec.Tokens = append(rec.Tokens, t.Hex())
			rec.Reserves = append(rec.Reserves, p.Reserves[i].String())
			rec.Decimals = append(rec.Decimals, int(p.Decimals[i]))
			if _, ok := seen[t]; !ok && assets != nil {
				seen[t] = struct{}{}
				a := assets.Resolve(t)
				doc.Tokens = append(doc.Tokens, TokenRecord{Address: t.Hex(), Symbol: a.Symbol(), Decimals: int(a.Decimals())})
			}
		}
		for _, w := range p.Weights {
			rec.Weights = append(rec.Weights, w.String())
		}
		doc.Pools = append(doc.Pools, rec)
	}
	return doc
}

// ParseReserve reads a raw reserve written as a decimal integer or 0x-prefixed hex.
// Values must fit in 256 bits, matching on-chain storage.
func ParseReserve(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			digits = "0"
		}
		v, err = uint256.FromHex("0x" + digits)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve %q: %w", s, err)
	}
	return v.ToBig(), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fail("invalid token address %q", s)
	}
	return common.HexToAddress(s), nil
}

func fail(format string, args ...any) error {
	return apperror.New(apperror.CodeSnapshotLoadFailed, apperror.WithContext(fmt.Sprintf(format, args...)))
}
