// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const MaxPeerIDLen = 64

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrPeerIDTooLong  = errors.New("peer id too long")
	ErrPeerIDEmpty    = errors.New("peer id empty")
)

// PeerID is the opaque, transport-assigned id of a connected client.
type PeerID string

func (id PeerID) Validate() error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}

// Presence is a broadcaster registry record.
type Presence struct {
	ID           PeerID    `json:"id"`
	RegisteredAt time.Time `json:"registered_at"`
}
