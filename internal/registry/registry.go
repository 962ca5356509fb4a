package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/shellmux/internal/events"
	"github.com/mattjoyce/shellmux/internal/shell"
)

var (
	ErrUnknownSlot = errors.New("unknown shell slot")
	ErrSlotExists  = errors.New("shell slot already registered")
	ErrNotRoot     = errors.New("slot requires a root shell")
)

// Factory creates the session for a slot.
type Factory func(ctx context.Context) (*shell.Session, error)

// Publisher receives lifecycle events. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}

// SlotConfig describes how a slot obtains its session.
type SlotConfig struct {
	Factory Factory
	// Fallback names the slot to use when this one cannot create a session.
	Fallback string
	// RequireRoot rejects jobs when the slot's session is not root.
	RequireRoot bool
}

type slot struct {
	name     string
	cfg      SlotConfig
	session  *shell.Session
	creating *creation
}

// creation is the single in-flight creation attempt of a slot.
type creation struct {
	done    chan struct{}
	session *shell.Session
	err     error
	pending []func(*shell.Session, error)
}

// Registry lazily creates and caches one session per named slot.
type Registry struct {
	mu        sync.Mutex
	slots     map[string]*slot
	recorders []Recorder
	hub       Publisher
	logger    *slog.Logger
}

// New returns an empty Registry. hub may be nil.
func New(hub Publisher, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		slots:  make(map[string]*slot),
		hub:    hub,
		logger: logger.With("component", "registry"),
	}
}

// Register adds a slot. Sessions are not created until first use.
func (r *Registry) Register(name string, cfg SlotConfig) error {
	if cfg.Factory == nil {
		return fmt.Errorf("slot %q: factory is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[name]; ok {
		return fmt.Errorf("%w: %s", ErrSlotExists, name)
	}
	r.slots[name] = &slot{name: name, cfg: cfg}
	return nil
}

// AddRecorder registers a sink for finished slot jobs.
func (r *Registry) AddRecorder(rec Recorder) {
	r.mu.Lock()
	r.recorders = append(r.recorders, rec)
	r.mu.Unlock()
}

// Get returns the slot's live session, creating one if needed. Concurrent
// callers share a single creation attempt. ctx only bounds the wait; the
// attempt itself continues for the benefit of other callers.
func (r *Registry) Get(ctx context.Context, name string) (*shell.Session, error) {
	r.mu.Lock()
	sl, ok := r.slots[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	if s := r.cachedLocked(sl); s != nil {
		r.mu.Unlock()
		return s, nil
	}
	c := r.creationLocked(ctx, sl)
	r.mu.Unlock()

	select {
	case <-c.done:
		return c.session, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetAsync calls cb with the slot's session once it is available. Callbacks
// registered while a creation is in flight are replayed in order when it
// finishes.
func (r *Registry) GetAsync(name string, cb func(*shell.Session, error)) {
	r.mu.Lock()
	sl, ok := r.slots[name]
	if !ok {
		r.mu.Unlock()
		cb(nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name))
		return
	}
	if s := r.cachedLocked(sl); s != nil {
		r.mu.Unlock()
		cb(s, nil)
		return
	}
	c := r.creationLocked(context.Background(), sl)
	c.pending = append(c.pending, cb)
	r.mu.Unlock()
}

// Cached returns the slot's live session without creating one.
func (r *Registry) Cached(name string) *shell.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl, ok := r.slots[name]
	if !ok {
		return nil
	}
	return r.cachedLocked(sl)
}

// GetWithFallback resolves name, moving on to its fallback slot when the
// session cannot be created. It returns the slot that served the session.
func (r *Registry) GetWithFallback(ctx context.Context, name string) (*shell.Session, string, error) {
	s, err := r.Get(ctx, name)
	if err == nil || errors.Is(err, ErrUnknownSlot) || ctx.Err() != nil {
		return s, name, err
	}
	fallback := r.fallbackOf(name)
	if fallback == "" {
		return nil, name, err
	}
	r.logger.Warn("slot unavailable, using fallback", "slot", name, "fallback", fallback, "error", err)
	s, ferr := r.Get(ctx, fallback)
	if ferr != nil {
		return nil, fallback, errors.Join(err, ferr)
	}
	return s, fallback, nil
}

func (r *Registry) getAsyncWithFallback(name string, cb func(*shell.Session, string, error)) {
	r.GetAsync(name, func(s *shell.Session, err error) {
		fallback := r.fallbackOf(name)
		if err == nil || errors.Is(err, ErrUnknownSlot) || fallback == "" {
			cb(s, name, err)
			return
		}
		r.GetAsync(fallback, func(s *shell.Session, ferr error) {
			if ferr != nil {
				cb(nil, fallback, errors.Join(err, ferr))
				return
			}
			cb(s, fallback, nil)
		})
	})
}

func (r *Registry) fallbackOf(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sl, ok := r.slots[name]; ok && sl.cfg.Fallback != name {
		return sl.cfg.Fallback
	}
	return ""
}

func (r *Registry) requiresRoot(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl, ok := r.slots[name]
	return ok && sl.cfg.RequireRoot
}

func (r *Registry) cachedLocked(sl *slot) *shell.Session {
	if sl.session == nil {
		return nil
	}
	if !sl.session.IsAlive() {
		r.logger.Info("evicting dead shell", "slot", sl.name)
		r.publish(events.ShellEvicted, map[string]any{"slot": sl.name})
		sl.session = nil
		return nil
	}
	return sl.session
}

func (r *Registry) creationLocked(ctx context.Context, sl *slot) *creation {
	if sl.creating != nil {
		return sl.creating
	}
	c := &creation{done: make(chan struct{})}
	sl.creating = c
	go r.create(context.WithoutCancel(ctx), sl, c)
	return c
}

func (r *Registry) create(ctx context.Context, sl *slot, c *creation) {
	start := time.Now()
	r.logger.Debug("creating shell", "slot", sl.name)
	r.publish(events.ShellCreating, map[string]any{"slot": sl.name})

	s, err := sl.cfg.Factory(ctx)

	r.mu.Lock()
	sl.creating = nil
	if err == nil {
		sl.session = s
	}
	c.session, c.err = s, err
	pending := c.pending
	c.pending = nil
	close(c.done)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("shell creation failed", "slot", sl.name, "error", err)
		r.publish(events.ShellFailed, map[string]any{"slot": sl.name, "error": err.Error()})
	} else {
		r.logger.Info("shell created", "slot", sl.name, "pid", s.Pid(), "status", s.Status().String(), "duration_ms", time.Since(start).Milliseconds())
		r.publish(events.ShellCreated, map[string]any{"slot": sl.name, "pid": s.Pid(), "status": s.Status().String()})
	}

	for _, cb := range pending {
		cb(s, err)
	}
}

// SlotInfo describes a slot for status listings.
type SlotInfo struct {
	Name     string    `json:"name"`
	Alive    bool      `json:"alive"`
	Creating bool      `json:"creating"`
	Status   string    `json:"status"`
	PID      int       `json:"pid,omitempty"`
	Created  time.Time `json:"created,omitzero"`
	Queued   int       `json:"queued"`
	Fallback string    `json:"fallback,omitempty"`
}

// Slots lists every registered slot, sorted by name.
func (r *Registry) Slots() []SlotInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SlotInfo, 0, len(r.slots))
	for _, sl := range r.slots {
		info := SlotInfo{
			Name:     sl.name,
			Creating: sl.creating != nil,
			Status:   shell.StatusUnknown.String(),
			Fallback: sl.cfg.Fallback,
		}
		if s := r.cachedLocked(sl); s != nil {
			info.Alive = true
			info.Status = s.Status().String()
			info.PID = s.Pid()
			info.Created = s.Created()
			info.Queued = s.QueueLen()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every cached session.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := make([]*shell.Session, 0, len(r.slots))
	for _, sl := range r.slots {
		if sl.session != nil {
			sessions = append(sessions, sl.session)
			sl.session = nil
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (r *Registry) publish(eventType string, data any) {
	if r.hub != nil {
		r.hub.Publish(eventType, data)
	}
}
