// Package protocol models the signaling frames exchanged over the relay.
//
// Description and candidate payloads are carried as raw JSON so the relay can
// forward them byte for byte without knowing their shape.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type Type string

const (
	TypeWelcome           Type = "welcome"
	TypeBroadcaster       Type = "broadcaster"
	TypeListBroadcasters  Type = "list-broadcasters"
	TypeBroadcastersList  Type = "broadcasters-list"
	TypeViewer            Type = "viewer"
	TypeRemoveBroadcaster Type = "remove-broadcaster"
	TypeOffer             Type = "offer"
	TypeAnswer            Type = "answer"
	TypeCandidate         Type = "candidate"
	TypeStop              Type = "stop"
	TypePeerDisconnected  Type = "peer-disconnected"
	TypePing              Type = "ping"
	TypePong              Type = "pong"
	TypeError             Type = "error"

	// typeDisconnectPeer is the legacy spelling of TypePeerDisconnected.
	typeDisconnectPeer Type = "disconnectPeer"
)

var (
	ErrUnknownType    = errors.New("protocol: unknown message type")
	ErrMissingTarget  = errors.New("protocol: missing target id")
	ErrMissingPayload = errors.New("protocol: missing payload")
)

type Message struct {
	Type      Type            `json:"type"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	ID        string          `json:"id,omitempty"`
	IDs       []string        `json:"ids,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Relayed reports whether the relay forwards m to a named target.
func (t Type) Relayed() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate, TypeStop:
		return true
	}
	return false
}

func (m Message) Validate() error {
	switch m.Type {
	case TypeWelcome, TypeBroadcaster, TypeListBroadcasters, TypeBroadcastersList,
		TypeViewer, TypeRemoveBroadcaster, TypePeerDisconnected, TypePing, TypePong, TypeError:
		return nil
	case TypeOffer, TypeAnswer, TypeCandidate, TypeStop:
		// Payloads are opaque here; Description and ICECandidate check them.
		if m.To == "" && m.From == "" {
			return fmt.Errorf("%s: %w", m.Type, ErrMissingTarget)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return nil
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == typeDisconnectPeer {
		m.Type = TypePeerDisconnected
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

// MustEncode is for messages built from known-good values.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

func DescriptionPayload(desc webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(desc)
}

func (m Message) Description() (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if len(m.SDP) == 0 {
		return desc, ErrMissingPayload
	}
	if err := json.Unmarshal(m.SDP, &desc); err != nil {
		return desc, fmt.Errorf("decode sdp: %w", err)
	}
	if desc.SDP == "" {
		return desc, ErrMissingPayload
	}
	return desc, nil
}

func CandidatePayload(c webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(c)
}

func (m Message) ICECandidate() (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if len(m.Candidate) == 0 {
		return c, ErrMissingPayload
	}
	if err := json.Unmarshal(m.Candidate, &c); err != nil {
		return c, fmt.Errorf("decode candidate: %w", err)
	}
	return c, nil
}
