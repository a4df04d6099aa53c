package pager

import (
	"context"
	"sync"
)

// Trigger loads the next page when the end of the listing becomes visible.
type Trigger struct {
	pager *Pager
	wg    sync.WaitGroup
}

func NewTrigger(p *Pager) *Trigger {
	return &Trigger{pager: p}
}

// Visible starts a FetchNext in the background. Calls made while a fetch is
// running are no-ops.
func (t *Trigger) Visible(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_, _ = t.pager.FetchNext(ctx)
	}()
}

// Wait blocks until every fetch started by Visible has resolved.
func (t *Trigger) Wait() {
	t.wg.Wait()
}
