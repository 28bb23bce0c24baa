package app

import "github.com/dkeye/RoboCast/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickSession
	DropFrame
)

// Policy decides what happens to a session whose send queue is full.
type Policy interface {
	OnBackPressure(session core.ClientSession) BackpressureAction
}

// SimplePolicy disconnects slow consumers; a client that cannot keep up with
// signaling would miss registry notices and hold a stale view.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ClientSession) BackpressureAction {
	return KickSession
}

// DropPolicy only drops the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.ClientSession) BackpressureAction {
	return DropFrame
}
