package cartsession

import "sync"

// Status is the state of a cart mutation as seen by the widget that issued it.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the outcome of a gateway mutation. Message is set on error.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

func success() Result {
	return Result{Status: StatusSuccess}
}

func failure(message string, err error) Result {
	return Result{Status: StatusError, Message: message, Err: err}
}

// Mutation tracks one widget's in-flight mutation. A second Run while one
// is pending is refused.
type Mutation struct {
	mu   sync.Mutex
	last Result
}

func (m *Mutation) State() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last.Status == "" {
		return Result{Status: StatusIdle}
	}
	return m.last
}

// Run executes fn unless a previous Run is still pending, in which case the
// pending state is returned and fn is not called.
func (m *Mutation) Run(fn func() Result) Result {
	m.mu.Lock()
	if m.last.Status == StatusPending {
		m.mu.Unlock()
		return Result{Status: StatusPending}
	}
	m.last = Result{Status: StatusPending}
	m.mu.Unlock()

	res := fn()
	if res.Status != StatusSuccess && res.Status != StatusError {
		res = failure("unexpected mutation state", nil)
	}

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()
	return res
}
