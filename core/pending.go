package core

import (
	"fmt"
	"reflect"

	"go.uber.org/atomic"
)

// pendingCall is a correlated call waiting for its terminal response.
// Exactly one of complete or fail is called, once.
type pendingCall interface {
	complete(result any) error
	fail(err error)
}

// hiddenContext carries the caller's state and continuations for one rpc
// call or pipe push.
type hiddenContext[S, C, U, R any] struct {
	state       S
	callContext C
	userContext U

	success func(S, C, U, R)
	failure func(S, C, U, error)
}

// complete checks the result against R and fires the matching
// continuation. A nil result yields the zero R.
func (h *hiddenContext[S, C, U, R]) complete(result any) error {
	var value R
	if result != nil {
		typed, ok := result.(R)
		if !ok {
			err := fmt.Errorf("%w: success type (%T) does not match expected type (%s)",
				ErrTypeMismatch, result, reflect.TypeOf((*R)(nil)).Elem())
			h.fail(err)
			return err
		}
		value = typed
	}

	if h.success != nil {
		h.success(h.state, h.callContext, h.userContext, value)
	}
	return nil
}

func (h *hiddenContext[S, C, U, R]) fail(err error) {
	if h.failure != nil {
		h.failure(h.state, h.callContext, h.userContext, err)
	}
}

// pendingCalls correlates ids to calls for one component. Only the owning
// actor touches the map; size may be read from anywhere.
type pendingCalls struct {
	nextID uint64
	calls  map[uint64]pendingCall
	size   *atomic.Int64
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{
		calls: make(map[uint64]pendingCall),
		size:  atomic.NewInt64(0),
	}
}

func (p *pendingCalls) add(call pendingCall) uint64 {
	p.nextID++
	p.calls[p.nextID] = call
	p.size.Inc()
	return p.nextID
}

// take removes and returns the call for id.
func (p *pendingCalls) take(id uint64) (pendingCall, bool) {
	call, exists := p.calls[id]
	if exists {
		delete(p.calls, id)
		p.size.Dec()
	}
	return call, exists
}

func (p *pendingCalls) len() int {
	return int(p.size.Load())
}
