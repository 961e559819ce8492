// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Block is the part of a chain head the search loop cares about.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
	BaseFee    *big.Int
}

// Age returns how long ago the block was produced.
func (b *Block) Age(now time.Time) time.Duration {
	return now.Sub(b.Timestamp)
}

// ConnectionState represents the state of a node connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// Gauge maps a state onto the eth_connection_state metric value.
func (s ConnectionState) Gauge() int64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateReconnecting:
		return 3
	}
	return 0
}

// Status is a point-in-time view of the head watcher.
type Status struct {
	State      ConnectionState
	LastBlock  uint64
	LastSeen   time.Time
	Reconnects int
	Polling    bool // true once the HTTP fallback is in use
}
