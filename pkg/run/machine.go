package run

import (
	"context"
	"sync"
	"time"
)

// machine guards the state of one run.
type machine struct {
	mu    sync.Mutex
	state State
	err   error
	emit  Emitter
}

func newMachine(emit Emitter) machine {
	if emit == nil {
		emit = NopEmitter{}
	}
	return machine{state: StateIdle, emit: emit}
}

func (m *machine) begin() error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrNotReusable
	}
	m.state = StateRunning
	m.mu.Unlock()

	m.emit.State(StateIdle, StateRunning, nil)
	return nil
}

// finish moves to the terminal state matching err.
func (m *machine) finish(err error) State {
	to := terminalFor(err)

	m.mu.Lock()
	from := m.state
	m.state = to
	m.err = err
	m.mu.Unlock()

	m.emit.State(from, to, err)
	return to
}

// State returns the current state and the error that ended the run.
func (m *machine) State() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

// settle waits d or until ctx is done.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return checkCancel(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ErrCancelled
	case <-t.C:
		return nil
	}
}

func checkCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}
