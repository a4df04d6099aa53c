package bridge

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
)

// CartReader performs an authoritative cart read.
type CartReader interface {
	Cart(ctx context.Context) (*domain.Cart, error)
}

// watcher re-reads the cart on every signal while mounted.
type watcher struct {
	reader CartReader
	signal *Signal
	logger logrus.FieldLogger
	apply  func(cart *domain.Cart, err error) bool

	mu      sync.Mutex
	alive   bool
	seq     uint64
	applied uint64
	unsub   func()
	stop    chan struct{}
	changed chan struct{}
}

func newWatcher(reader CartReader, sig *Signal, logger logrus.FieldLogger) *watcher {
	if sig == nil {
		sig = Default
	}
	return &watcher{
		reader:  reader,
		signal:  sig,
		logger:  logging.OrDiscard(logger),
		changed: make(chan struct{}, 1),
	}
}

func (w *watcher) mount(ctx context.Context) {
	w.mu.Lock()
	if w.alive {
		w.mu.Unlock()
		return
	}
	ch, unsub := w.signal.Subscribe()
	w.alive = true
	w.unsub = unsub
	w.stop = make(chan struct{})
	stop := w.stop
	w.mu.Unlock()

	go func() {
		for {
			select {
			case <-ch:
				w.refresh(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	w.refresh(ctx)
}

func (w *watcher) unmount() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.alive {
		return
	}
	w.alive = false
	w.unsub()
	close(w.stop)
}

func (w *watcher) refresh(ctx context.Context) {
	w.mu.Lock()
	if !w.alive {
		w.mu.Unlock()
		return
	}
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	cart, err := w.reader.Cart(ctx)
	if err != nil {
		w.logger.WithError(err).Error("error fetching cart")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.alive || seq < w.applied {
		return
	}
	w.applied = seq
	if w.apply(cart, err) {
		select {
		case w.changed <- struct{}{}:
		default:
		}
	}
}

// CartBadge shows the cart's total quantity. A failed read keeps the last
// known value.
type CartBadge struct {
	*watcher
	quantity int
}

func NewCartBadge(reader CartReader, sig *Signal, logger logrus.FieldLogger) *CartBadge {
	b := &CartBadge{}
	b.watcher = newWatcher(reader, sig, logger)
	b.apply = func(cart *domain.Cart, err error) bool {
		if err != nil {
			return false
		}
		qty := 0
		if cart != nil {
			qty = cart.TotalQuantity
		}
		b.quantity = qty
		return true
	}
	return b
}

// Mount reads the cart once, then again on every signal until Unmount or
// ctx is done.
func (b *CartBadge) Mount(ctx context.Context) { b.mount(ctx) }

// Unmount stops listening. Reads still in flight are discarded.
func (b *CartBadge) Unmount() { b.unmount() }

func (b *CartBadge) Quantity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quantity
}

// Changed fires after each applied read.
func (b *CartBadge) Changed() <-chan struct{} { return b.changed }

// InCartIndicator reports whether one merchandise is in the cart. A failed
// read or an absent cart resets it to not-in-cart.
type InCartIndicator struct {
	*watcher
	merchandiseID string
	quantity      int
}

func NewInCartIndicator(reader CartReader, sig *Signal, merchandiseID string, logger logrus.FieldLogger) *InCartIndicator {
	ind := &InCartIndicator{merchandiseID: merchandiseID}
	ind.watcher = newWatcher(reader, sig, logger)
	ind.apply = func(cart *domain.Cart, err error) bool {
		ind.quantity = 0
		if err == nil {
			if line, ok := cart.LineFor(ind.merchandiseID); ok {
				ind.quantity = line.Quantity
			}
		}
		return true
	}
	return ind
}

func (i *InCartIndicator) Mount(ctx context.Context) { i.mount(ctx) }

func (i *InCartIndicator) Unmount() { i.unmount() }

func (i *InCartIndicator) InCart() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.quantity > 0
}

func (i *InCartIndicator) Quantity() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.quantity
}

func (i *InCartIndicator) Changed() <-chan struct{} { return i.changed }
