// Package cart derives cart totals from catalog snapshots.
package cart

import (
	"sync"

	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/observe"
)

// Info is the cart projection of one snapshot.
type Info struct {
	CartSize   int     `json:"cartSize"`
	TotalPrice float64 `json:"totalPrice"`
}

// Compute recomputes Info from scratch in a single pass over the snapshot.
func Compute(snap catalog.Snapshot) Info {
	var info Info
	for i := 0; i < snap.Len(); i++ {
		it := snap.At(i)
		if it.AmountInCart > 0 {
			info.CartSize++
		}
		info.TotalPrice += it.Price * float64(it.AmountInCart)
	}
	return info
}

// Source publishes catalog snapshots, e.g. *catalog.Store.
type Source interface {
	Subscribe(fn func(catalog.Snapshot)) func()
}

// Aggregator keeps the Info of the latest snapshot published by a Source.
// It never writes back to the source.
type Aggregator struct {
	info      *observe.Subject[Info]
	closeOnce sync.Once
	cancel    func()
}

// Attach subscribes to src and computes Info for its current snapshot
// before returning.
func Attach(src Source) *Aggregator {
	a := &Aggregator{info: observe.NewSubject(Info{})}
	a.cancel = src.Subscribe(func(snap catalog.Snapshot) {
		a.info.Publish(Compute(snap))
	})
	return a
}

func (a *Aggregator) Info() Info { return a.info.Value() }

func (a *Aggregator) TotalPrice() float64 { return a.info.Value().TotalPrice }

// Subscribe registers fn for every recomputed Info, starting with the current one.
func (a *Aggregator) Subscribe(fn func(Info)) func() { return a.info.Subscribe(fn) }

// Close detaches the aggregator from its source.
func (a *Aggregator) Close() {
	a.closeOnce.Do(a.cancel)
}
