package bridge

import (
	"sync"

	"storefront/internal/cartsession"
)

// Action wraps one widget's cart mutation. On success it shows the
// confirmation immediately and broadcasts the cart signal.
type Action struct {
	mutation cartsession.Mutation
	signal   *Signal

	mu        sync.Mutex
	confirmed bool
}

func NewAction(sig *Signal) *Action {
	if sig == nil {
		sig = Default
	}
	return &Action{signal: sig}
}

func (a *Action) Run(fn func() cartsession.Result) cartsession.Result {
	res := a.mutation.Run(fn)
	if res.Status == cartsession.StatusPending {
		return res
	}

	a.mu.Lock()
	a.confirmed = res.OK()
	a.mu.Unlock()
	if res.OK() {
		a.signal.Broadcast()
	}
	return res
}

// Confirmed reports whether the last completed run succeeded.
func (a *Action) Confirmed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.confirmed
}

func (a *Action) State() cartsession.Result {
	return a.mutation.State()
}
