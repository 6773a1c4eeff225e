// Package view keeps a live, ordered, optionally filtered list of tasks in step with the store
// and the current search term.
//
// The engine holds at most one store subscription. Switching the search term cancels the old
// subscription and tags the new one with a fresh generation; snapshots from any older
// generation are dropped, so consumers never see results for a term that is no longer current.
// When the last consumer detaches the subscription stays open for a grace period, letting a
// quick re-attach reuse the retained list without querying the store again.
package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"tasktrack/pkg/task"
)

// DefaultGracePeriod is how long the engine keeps observing after its last consumer detaches.
const DefaultGracePeriod = 5 * time.Second

var (
	// ErrEmptyTitle is returned by Add for a blank title.
	ErrEmptyTitle = fmt.Errorf("%w: title must not be blank", task.ErrInvalid)
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("view engine closed")
)

// Source is what the engine reads from and writes to; *repo.Repository implements it.
// Observe methods must return without blocking.
type Source interface {
	ObserveAll(ctx context.Context) <-chan []task.Task
	ObserveFiltered(ctx context.Context, term string) <-chan []task.Task
	Add(ctx context.Context, t *task.Task) (int64, error)
	Update(ctx context.Context, t *task.Task) error
	Delete(ctx context.Context, t *task.Task) error
	DeleteAll(ctx context.Context) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithGracePeriod sets how long the subscription outlives its last consumer.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Engine) { e.grace = d }
}

// Frame is one emitted list together with the subscription state that produced it.
type Frame struct {
	State State
	Tasks []task.Task
}

type consumer struct {
	send  func(Frame)
	close func()
}

// Engine is the query-driven view over a Source.
type Engine struct {
	src   Source
	grace time.Duration

	// root scope; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	term      string
	state     State
	gen       uint64
	stop      context.CancelFunc // cancels the active subscription
	consumers map[uint64]consumer
	nextID    uint64

	last      []task.Task
	lastState State // subscription that produced last
	hasLast   bool

	teardown    *time.Timer
	teardownSeq uint64
	closed      bool
}

// New creates an Engine with an empty search term. No store query runs until the first
// consumer attaches.
func New(src Source, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		src:       src,
		grace:     DefaultGracePeriod,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[uint64]consumer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query returns the current search term.
func (e *Engine) Query() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.term
}

// State returns the engine's current subscription state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Consumers returns the number of attached consumers.
func (e *Engine) Consumers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.consumers)
}

// Value returns a copy of the most recently emitted list, or nil if nothing was emitted yet.
func (e *Engine) Value() []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasLast {
		return nil
	}
	return slices.Clone(e.last)
}

// Latest returns the most recently emitted list along with the state that produced it, which
// may differ from State once the term has changed or the engine went idle.
func (e *Engine) Latest() (Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasLast {
		return Frame{}, false
	}
	return Frame{State: e.lastState, Tasks: slices.Clone(e.last)}, true
}

// SetQuery changes the search term. While the engine is observing, the subscription switches
// to the list matching term before SetQuery returns.
func (e *Engine) SetQuery(term string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.term = term
	if e.state.Mode == Idle {
		return
	}
	if next := target(term); next != e.state {
		e.subscribeLocked(next)
	}
}

// Watch attaches a consumer. The returned channel receives the list for the current term,
// starting with the retained list when one exists for that term, and then every newer list.
// Delivery is conflating: a slow consumer only sees the newest list. Slices are shared between
// consumers and must not be modified. The channel is closed when ctx is done or the engine
// is closed.
func (e *Engine) Watch(ctx context.Context) <-chan []task.Task {
	ch := make(chan []task.Task, 1)
	e.attach(ctx, consumer{
		send:  func(f Frame) { offer(ch, f.Tasks) },
		close: func() { close(ch) },
	})
	return ch
}

// WatchFrames is Watch with every list labelled by the subscription that produced it. A frame
// buffered before a SetQuery keeps its old state.
func (e *Engine) WatchFrames(ctx context.Context) <-chan Frame {
	ch := make(chan Frame, 1)
	e.attach(ctx, consumer{
		send:  func(f Frame) { offer(ch, f) },
		close: func() { close(ch) },
	})
	return ch
}

func (e *Engine) attach(ctx context.Context, c consumer) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		c.close()
		return
	}
	e.nextID++
	id := e.nextID
	e.consumers[id] = c
	e.cancelTeardownLocked()

	want := target(e.term)
	if e.state.Mode == Idle {
		e.subscribeLocked(want)
	}
	if e.hasLast && e.lastState == want {
		c.send(Frame{State: e.lastState, Tasks: e.last})
	}
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			e.detach(id)
		case <-e.ctx.Done():
		}
	}()
}

// Add creates a task. A blank title is rejected with ErrEmptyTitle before reaching the store.
func (e *Engine) Add(ctx context.Context, title, description string, dueAt *time.Time) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, ErrEmptyTitle
	}
	ctx, done, err := e.scoped(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	t := &task.Task{
		Title:       title,
		Description: description,
		CreatedAt:   task.Millis(time.Now()),
		DueAt:       dueAt,
	}
	return e.src.Add(ctx, t)
}

// Update replaces the stored task with t.
func (e *Engine) Update(ctx context.Context, t task.Task) error {
	ctx, done, err := e.scoped(ctx)
	if err != nil {
		return err
	}
	defer done()
	return e.src.Update(ctx, &t)
}

// ToggleComplete flips t's completion flag and stores it, leaving every other field as given.
// It returns the task as written.
func (e *Engine) ToggleComplete(ctx context.Context, t task.Task) (task.Task, error) {
	t.Completed = !t.Completed
	if err := e.Update(ctx, t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// Delete removes t.
func (e *Engine) Delete(ctx context.Context, t task.Task) error {
	ctx, done, err := e.scoped(ctx)
	if err != nil {
		return err
	}
	defer done()
	return e.src.Delete(ctx, &t)
}

// DeleteAll removes every task.
func (e *Engine) DeleteAll(ctx context.Context) error {
	ctx, done, err := e.scoped(ctx)
	if err != nil {
		return err
	}
	defer done()
	return e.src.DeleteAll(ctx)
}

// Close stops observing, closes every consumer channel and cancels mutations in flight.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancelTeardownLocked()
	e.stopLocked()
	for id, c := range e.consumers {
		delete(e.consumers, id)
		c.close()
	}
	e.mu.Unlock()

	e.cancel()
}

// subscribeLocked replaces the active subscription with one for next.
func (e *Engine) subscribeLocked(next State) {
	if e.stop != nil {
		e.stop()
	}
	e.gen++
	gen := e.gen

	ctx, stop := context.WithCancel(e.ctx)
	e.stop = stop
	e.state = next

	var seq <-chan []task.Task
	if next.Mode == ObservingFiltered {
		seq = e.src.ObserveFiltered(ctx, next.Term)
	} else {
		seq = e.src.ObserveAll(ctx)
	}
	go e.pump(ctx, gen, next, seq)
}

// stopLocked drops the active subscription and returns to Idle. The retained list is kept.
func (e *Engine) stopLocked() {
	if e.stop != nil {
		e.stop()
		e.stop = nil
	}
	e.gen++
	e.state = State{Mode: Idle}
}

func (e *Engine) pump(ctx context.Context, gen uint64, st State, seq <-chan []task.Task) {
	for {
		select {
		case <-ctx.Done():
			return
		case tasks, ok := <-seq:
			if !ok {
				return
			}
			e.deliver(gen, st, tasks)
		}
	}
}

func (e *Engine) deliver(gen uint64, st State, tasks []task.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen || e.closed {
		return // superseded
	}
	e.last = tasks
	e.lastState = st
	e.hasLast = true
	f := Frame{State: st, Tasks: tasks}
	for _, c := range e.consumers {
		c.send(f)
	}
}

func (e *Engine) detach(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.consumers[id]
	if !ok {
		return
	}
	delete(e.consumers, id)
	c.close()
	if len(e.consumers) == 0 && !e.closed && e.state.Mode != Idle {
		e.scheduleTeardownLocked()
	}
}

func (e *Engine) scheduleTeardownLocked() {
	e.cancelTeardownLocked()
	seq := e.teardownSeq
	e.teardown = time.AfterFunc(e.grace, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if seq != e.teardownSeq || len(e.consumers) > 0 || e.closed {
			return
		}
		e.teardown = nil
		e.stopLocked()
	})
}

func (e *Engine) cancelTeardownLocked() {
	if e.teardown != nil {
		e.teardown.Stop()
		e.teardown = nil
	}
	e.teardownSeq++
}

// scoped derives a context that is also cancelled when the engine closes.
func (e *Engine) scoped(ctx context.Context) (context.Context, func(), error) {
	if e.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// offer hands v to ch, replacing an undelivered older value.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
