package override

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/screentime-core/internal/clock"
	"github.com/nerrad567/screentime-core/internal/restriction"
)

// Keys for the override record and the pre-override snapshot.
const (
	KeyActive   = "override.active"
	KeySnapshot = "override.snapshot"
)

const (
	defaultDuration    = 15 * time.Minute
	defaultMaxDuration = 24 * time.Hour
	defaultRetryDelay  = 30 * time.Second
	eventBuffer        = 64
	notifyTimeout      = 10 * time.Second
)

// Options tunes a Controller. Zero values select defaults.
type Options struct {
	// DefaultDuration is used when a command's duration is <= 0.
	DefaultDuration time.Duration

	// MaxDuration caps a command's duration.
	MaxDuration time.Duration

	// Notify enables user notifications.
	Notify bool

	// RetryDelay is the wait before retrying a reversal that failed to persist.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = defaultDuration
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = defaultMaxDuration
	}
	if o.MaxDuration < o.DefaultDuration {
		o.MaxDuration = o.DefaultDuration
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	return o
}

// Controller is the single owner of restriction state.
//
// Every read and write runs on one goroutine, which also owns the single
// pending reversal timer. A new command stops the previous timer before
// scheduling its own, so an older reversal can never undo a newer
// override.
//
// Lifecycle: NewController → Subscribe/SetNotifier/SetLogger → Start → Close.
//
// Thread Safety:
//   - Dispatch, Status, SetRestrictions and Subscribe are safe for concurrent use.
type Controller struct {
	store    restriction.Store
	clock    clock.Clock
	opts     Options
	notifier Notifier
	logger   Logger

	reqs   chan request
	events chan Event
	quit   chan struct{}

	listenersMu sync.RWMutex
	listeners   map[int]func(Event)
	nextID      int

	startOnce sync.Once
	closeOnce sync.Once
	started   chan struct{}
	loopDone  chan struct{}
	drainDone chan struct{}

	// Owned by the loop goroutine.
	active     *ActiveOverride
	snapshot   *restriction.State
	timer      *clock.Timer
	generation uint64
}

type request struct {
	fn   func() error
	errc chan error
}

// NewController creates a Controller backed by store.
//
// Parameters:
//   - store: Key-value store holding restrictions and the override record
//   - clk: Time source for expiry (clock.Real() in production)
//   - opts: Duration limits and notification toggle
func NewController(store restriction.Store, clk clock.Clock, opts Options) *Controller {
	return &Controller{
		store:     store,
		clock:     clk,
		opts:      opts.withDefaults(),
		logger:    noopLogger{},
		reqs:      make(chan request),
		events:    make(chan Event, eventBuffer),
		quit:      make(chan struct{}),
		listeners: make(map[int]func(Event)),
		started:   make(chan struct{}),
		loopDone:  make(chan struct{}),
		drainDone: make(chan struct{}),
	}
}

// SetLogger sets the logger. Call before Start.
func (c *Controller) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetNotifier sets where user notifications go. Call before Start.
func (c *Controller) SetNotifier(n Notifier) {
	c.notifier = n
}

// Subscribe registers fn for every event. Events are delivered in order
// on a single goroutine, so fn must not block for long. The returned
// function removes the subscription.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Start restores any persisted override and begins serving requests.
//
// An override that expired while the agent was down is reversed
// immediately. One still running gets its reversal rescheduled for the
// remaining time.
func (c *Controller) Start(ctx context.Context) error {
	var err error
	c.startOnce.Do(func() {
		go c.deliver()
		if err = c.recover(ctx); err != nil {
			close(c.events)
			return
		}
		go c.loop()
		close(c.started)
	})
	return err
}

// Close stops the controller and waits for queued events to be delivered.
// The persisted override is left in place for the next Start.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		if !c.wasStarted() {
			return
		}
		<-c.loopDone
		c.stopTimer()
		close(c.events)
		<-c.drainDone
	})
	return nil
}

func (c *Controller) wasStarted() bool {
	select {
	case <-c.started:
		return true
	default:
		return false
	}
}

func (c *Controller) loop() {
	defer close(c.loopDone)
	for {
		select {
		case req := <-c.reqs:
			req.errc <- req.fn()
		case <-c.quit:
			return
		}
	}
}

// exec runs fn on the loop goroutine and waits for it. ctx only bounds
// the wait to be queued.
func (c *Controller) exec(ctx context.Context, fn func() error) error {
	select {
	case <-c.started:
	case <-c.quit:
		return ErrClosed
	default:
		return ErrNotStarted
	}

	req := request{fn: fn, errc: make(chan error, 1)}
	select {
	case c.reqs <- req:
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once queued, fn always runs; wait for it so its results are safe to read.
	return <-req.errc
}

// Dispatch carries out cmd.
//
// For lifting actions the current restrictions are snapshotted (unless an
// override is already active, in which case the original snapshot is
// kept), lifted, and a reversal is scheduled. cancelOverride restores the
// snapshot at once and returns ErrNoActiveOverride if nothing is active.
func (c *Controller) Dispatch(ctx context.Context, cmd Command, src Source) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	var res Result
	err := c.exec(ctx, func() error {
		var err error
		if cmd.Action == ActionCancelOverride {
			res, err = c.cancel(ctx, cmd, src)
		} else {
			res, err = c.apply(ctx, cmd, src)
		}
		return err
	})
	return res, err
}

// Cancel is Dispatch with cancelOverride.
func (c *Controller) Cancel(ctx context.Context, src Source) (Result, error) {
	return c.Dispatch(ctx, Command{Action: ActionCancelOverride}, src)
}

// Status returns the active override, if any, and the restrictions in force.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.exec(ctx, func() error {
		s, err := restriction.Load(ctx, c.store)
		if err != nil {
			return err
		}
		st.Restrictions = s
		if c.active != nil {
			a := *c.active
			st.Active = &a
		}
		return nil
	})
	return st, err
}

// SetRestrictions replaces the restriction set. While an override is
// active the new set replaces the snapshot and takes effect when the
// override ends.
func (c *Controller) SetRestrictions(ctx context.Context, s restriction.State) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s = s.Normalize()

	return c.exec(ctx, func() error {
		var b restriction.Batch
		live := s
		if c.active != nil {
			if err := stageJSON(&b, KeySnapshot, s); err != nil {
				return err
			}
			current, err := restriction.Load(ctx, c.store)
			if err != nil {
				return err
			}
			live = current
		} else if err := restriction.Stage(&b, s); err != nil {
			return err
		}

		if err := c.store.Apply(ctx, b); err != nil {
			return fmt.Errorf("saving restrictions: %w", err)
		}
		if c.active != nil {
			snap := s.Clone()
			c.snapshot = &snap
		}
		c.emit(Event{Type: EventRestrictionsUpdated, Restrictions: live, Timestamp: c.clock.Now().UTC()})
		return nil
	})
}

func (c *Controller) duration(minutes int) time.Duration {
	if minutes <= 0 {
		return c.opts.DefaultDuration
	}
	// Compare in minutes so huge requests cannot overflow time.Duration.
	maxMinutes := int(c.opts.MaxDuration / time.Minute)
	if minutes > maxMinutes {
		c.logger.Warn("override duration clamped", "requested_minutes", minutes,
			"max_minutes", maxMinutes)
		return c.opts.MaxDuration
	}
	return time.Duration(minutes) * time.Minute
}

func (c *Controller) apply(ctx context.Context, cmd Command, src Source) (Result, error) {
	effective := Resolve(cmd)
	d := c.duration(cmd.Duration)
	now := c.clock.Now().UTC()

	current, err := restriction.Load(ctx, c.store)
	if err != nil {
		return Result{}, err
	}

	snapshot := current
	superseded := c.active != nil
	if superseded && c.snapshot != nil {
		snapshot = *c.snapshot
	}
	lifted := lift(effective, current)

	rec := ActiveOverride{
		CommandID:       cmd.ID,
		Action:          cmd.Action,
		EffectiveAction: effective,
		Reason:          cmd.Reason,
		Source:          src,
		DurationMinutes: int(d / time.Minute),
		StartedAt:       now,
		ExpiresAt:       now.Add(d),
	}

	var b restriction.Batch
	if err := restriction.Stage(&b, lifted); err != nil {
		return Result{}, err
	}
	if err := stageJSON(&b, KeySnapshot, snapshot); err != nil {
		return Result{}, err
	}
	if err := stageJSON(&b, KeyActive, rec); err != nil {
		return Result{}, err
	}
	if err := c.store.Apply(ctx, b); err != nil {
		return Result{}, fmt.Errorf("persisting override: %w", err)
	}

	c.active = &rec
	snap := snapshot.Clone()
	c.snapshot = &snap
	c.schedule(d)

	c.logger.Info("override applied",
		"command_id", rec.CommandID,
		"action", rec.Action,
		"effective_action", effective,
		"duration_minutes", rec.DurationMinutes,
		"source", src,
		"superseded", superseded,
	)
	c.emit(Event{
		Type:            EventApplied,
		CommandID:       rec.CommandID,
		Action:          rec.Action,
		EffectiveAction: effective,
		Reason:          rec.Reason,
		Source:          src,
		DurationMinutes: rec.DurationMinutes,
		ExpiresAt:       rec.ExpiresAt,
		Restrictions:    lifted.Normalize(),
		Timestamp:       now,
	})

	return Result{
		CommandID:       rec.CommandID,
		Action:          rec.Action,
		EffectiveAction: effective,
		ExpiresAt:       rec.ExpiresAt,
		Superseded:      superseded,
	}, nil
}

func (c *Controller) cancel(ctx context.Context, cmd Command, src Source) (Result, error) {
	if c.active == nil {
		return Result{}, ErrNoActiveOverride
	}
	prev := *c.active

	restored, err := c.restore(ctx)
	if err != nil {
		return Result{}, err
	}

	c.logger.Info("override cancelled", "command_id", prev.CommandID, "source", src)
	c.emit(Event{
		Type:            EventCancelled,
		CommandID:       cmd.ID,
		Action:          prev.Action,
		EffectiveAction: prev.EffectiveAction,
		Reason:          prev.Reason,
		Source:          src,
		Restrictions:    restored,
		Timestamp:       c.clock.Now().UTC(),
	})

	return Result{CommandID: cmd.ID, Action: ActionCancelOverride, EffectiveAction: ActionCancelOverride}, nil
}

// restore writes the snapshot back, removes the override record and
// stops the pending timer.
func (c *Controller) restore(ctx context.Context) (restriction.State, error) {
	var b restriction.Batch
	var restored restriction.State
	if c.snapshot != nil {
		restored = c.snapshot.Normalize()
		if err := restriction.Stage(&b, restored); err != nil {
			return restriction.State{}, err
		}
	} else {
		c.logger.Warn("override snapshot missing, leaving restrictions as they are")
		current, err := restriction.Load(ctx, c.store)
		if err != nil {
			return restriction.State{}, err
		}
		restored = current
	}
	b.Delete(KeyActive)
	b.Delete(KeySnapshot)

	if err := c.store.Apply(ctx, b); err != nil {
		return restriction.State{}, fmt.Errorf("restoring restrictions: %w", err)
	}

	c.stopTimer()
	c.active = nil
	c.snapshot = nil
	return restored, nil
}

// schedule replaces the pending reversal with one firing after d.
func (c *Controller) schedule(d time.Duration) {
	c.stopTimer()
	c.generation++
	gen := c.generation
	c.timer = c.clock.AfterFunc(d, func() {
		err := c.exec(context.Background(), func() error {
			c.expire(gen)
			return nil
		})
		if err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Error("override reversal not run", "error", err)
		}
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expire reverts the override started under generation gen. Stale
// generations are ignored.
func (c *Controller) expire(gen uint64) {
	if gen != c.generation || c.active == nil {
		return
	}
	c.revert(context.Background(), SourceTimer)
}

func (c *Controller) revert(ctx context.Context, src Source) {
	prev := *c.active
	restored, err := c.restore(ctx)
	if err != nil {
		c.logger.Error("override reversal failed, retrying",
			"command_id", prev.CommandID, "error", err, "retry_in", c.opts.RetryDelay)
		c.schedule(c.opts.RetryDelay)
		return
	}

	c.logger.Info("override reverted", "command_id", prev.CommandID, "source", src)
	c.emit(Event{
		Type:            EventReverted,
		CommandID:       prev.CommandID,
		Action:          prev.Action,
		EffectiveAction: prev.EffectiveAction,
		Reason:          prev.Reason,
		Source:          src,
		DurationMinutes: prev.DurationMinutes,
		Restrictions:    restored,
		Timestamp:       c.clock.Now().UTC(),
	})
}

// recover loads the persisted override before the loop starts.
func (c *Controller) recover(ctx context.Context) error {
	var rec ActiveOverride
	found, err := loadJSON(ctx, c.store, KeyActive, &rec)
	if err != nil {
		return fmt.Errorf("loading active override: %w", err)
	}
	if !found {
		return nil
	}

	var snap restriction.State
	hasSnap, err := loadJSON(ctx, c.store, KeySnapshot, &snap)
	if err != nil {
		return fmt.Errorf("loading override snapshot: %w", err)
	}

	c.active = &rec
	if hasSnap {
		c.snapshot = &snap
	}

	remaining := rec.Remaining(c.clock.Now())
	if remaining <= 0 {
		c.logger.Info("override expired while stopped, reverting", "command_id", rec.CommandID)
		c.revert(ctx, SourceStartup)
		return nil
	}

	c.logger.Info("override resumed", "command_id", rec.CommandID, "remaining", remaining.String())
	c.schedule(remaining)
	return nil
}

// emit queues e for delivery. Events raised after Close are dropped.
func (c *Controller) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.quit:
	}
}

// deliver runs notifications and listeners for each event in order.
func (c *Controller) deliver() {
	defer close(c.drainDone)
	for e := range c.events {
		if c.opts.Notify && c.notifier != nil {
			if n, ok := NotificationFor(e); ok {
				ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				if err := c.notifier.Notify(ctx, n); err != nil {
					c.logger.Warn("notification failed", "type", e.Type, "error", err)
				}
				cancel()
			}
		}

		c.listenersMu.RLock()
		fns := make([]func(Event), 0, len(c.listeners))
		for _, fn := range c.listeners {
			fns = append(fns, fn)
		}
		c.listenersMu.RUnlock()

		for _, fn := range fns {
			fn(e)
		}
	}
}

func stageJSON(b *restriction.Batch, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	b.Put(key, string(raw))
	return nil
}

func loadJSON(ctx context.Context, store restriction.Store, key string, dst any) (bool, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, restriction.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("%w: %s: %w", restriction.ErrInvalidValue, key, err)
	}
	return true, nil
}
