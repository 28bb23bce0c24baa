package session

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/RoboCast/internal/core"
)

// sampler polls the transport RTT on a fixed interval.
type sampler struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startSampler(interval time.Duration, t core.PeerTransport, emit func(context.Context, time.Duration)) *sampler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &sampler{cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if rtt, ok := t.RoundTripTime(); ok {
				emit(ctx, rtt)
			}
		}
	}()
	return s
}

// stop returns only after the polling goroutine has exited.
func (s *sampler) stop() {
	s.cancel()
	s.wg.Wait()
}
