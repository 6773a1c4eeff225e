package task

import (
	"context"
	"log"
	"sync"
)

// Feed is an in-process change notifier. Stores publish to it after every successful
// mutation; live sequences subscribe to it and re-query when signalled.
type Feed struct {
	mu   sync.RWMutex
	subs map[chan struct{}]struct{}
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan struct{}]struct{})}
}

// Publish signals every subscriber. Signals coalesce: a subscriber that has not yet consumed
// the previous signal is not sent another one.
func (f *Feed) Publish() {
	f.mu.RLock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	f.mu.RUnlock()
}

// Subscribe returns a channel that receives a signal after each change.
func (f *Feed) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Feed) Unsubscribe(ch chan struct{}) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
	close(ch)
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

type queryFunc func(ctx context.Context) ([]Task, error)

// observe turns a query into a live sequence driven by feed. The subscription is taken before
// the first query so no change between the two is lost.
func observe(ctx context.Context, feed *Feed, query queryFunc) <-chan []Task {
	out := make(chan []Task, 1)
	changes := feed.Subscribe()

	go func() {
		defer close(out)
		defer feed.Unsubscribe(changes)

		for {
			tasks, err := query(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				// keep the sequence alive; the next change retries
				log.Printf("task: observe query: %v", err)
			default:
				select {
				case out <- tasks:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-changes:
			}
		}
	}()

	return out
}
