package serial

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	statePending int32 = iota
	stateRunning
	stateAbandoned
)

// runRequest is the only message a key actor handles.
type runRequest struct {
	ctx   context.Context
	fn    func(context.Context) error
	state atomic.Int32
	done  chan error
}

// claim moves a pending request to the given state. Exactly one of the
// actor and the abandoning caller wins.
func (r *runRequest) claim(to int32) bool {
	return r.state.CompareAndSwap(statePending, to)
}

type keyActor struct {
	key    string
	logger *zap.Logger
}

func (a *keyActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *runRequest:
		if !msg.claim(stateRunning) {
			return
		}
		if err := msg.ctx.Err(); err != nil {
			msg.done <- err
			return
		}
		msg.done <- a.run(msg)

	case *actor.Stopped:
		a.logger.Debug("key actor stopped", zap.String("key", a.key))
	}
}

func (a *keyActor) run(msg *runRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("critical section panicked", zap.String("key", a.key), zap.Any("panic", r))
			err = fmt.Errorf("serial: panic in critical section %s: %v", a.key, r)
		}
	}()
	return msg.fn(msg.ctx)
}

type entry struct {
	pid      *actor.PID
	inflight int
	lastUsed time.Time
}

// Serializer runs critical sections on one protoactor actor per key. The
// actor's mailbox order is the lock order. Actors are spawned on demand and
// stopped by Sweep once idle.
type Serializer struct {
	system *actor.ActorSystem
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func NewSerializer(logger *zap.Logger) *Serializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Serializer{
		system:  actor.NewActorSystem(),
		logger:  logger.Named("serial"),
		entries: make(map[string]*entry),
	}
}

func (s *Serializer) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	pid, err := s.acquire(key)
	if err != nil {
		return err
	}
	defer s.release(key)

	req := &runRequest{ctx: ctx, fn: fn, done: make(chan error, 1)}
	s.system.Root.Send(pid, req)

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		if req.claim(stateAbandoned) {
			return ctx.Err()
		}
		// Already running: the section must finish before the key is free.
		return <-req.done
	}
}

func (s *Serializer) acquire(key string) (*actor.PID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("serial: serializer closed")
	}
	e, ok := s.entries[key]
	if !ok {
		props := actor.PropsFromProducer(func() actor.Actor {
			return &keyActor{key: key, logger: s.logger}
		})
		e = &entry{pid: s.system.Root.Spawn(props)}
		s.entries[key] = e
	}
	e.inflight++
	return e.pid, nil
}

func (s *Serializer) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.inflight--
		e.lastUsed = time.Now()
	}
}

// Sweep stops actors that have had no callers for at least idle and returns
// how many were stopped.
func (s *Serializer) Sweep(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	stopped := 0
	for key, e := range s.entries {
		if e.inflight > 0 || e.lastUsed.After(cutoff) {
			continue
		}
		s.system.Root.Stop(e.pid)
		delete(s.entries, key)
		stopped++
	}
	return stopped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Serializer) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(idle); n > 0 {
				s.logger.Debug("swept idle key actors", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of live key actors.
func (s *Serializer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Serializer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for key, e := range s.entries {
		s.system.Root.Stop(e.pid)
		delete(s.entries, key)
	}
	s.system.Shutdown()
}
