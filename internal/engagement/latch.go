package engagement

import "sync"

type latchState int

const (
	latchIdle latchState = iota
	latchActive
	latchClosed
)

// latch is a one-shot lifecycle: idle -> active -> closed. Each edge can be
// taken once; repeated Begin or End calls are absorbed and report false.
type latch struct {
	mu    sync.Mutex
	state latchState
}

func (l *latch) Begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != latchIdle {
		return false
	}
	l.state = latchActive
	return true
}

// End closes the latch. Ending an idle latch also closes it, so a later
// Begin is refused.
func (l *latch) End() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == latchClosed {
		return false
	}
	l.state = latchClosed
	return true
}

func (l *latch) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == latchActive
}
