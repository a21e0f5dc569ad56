package loom

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"pkt.systems/loom/core"
	"pkt.systems/loom/internal/eventbus"
	"pkt.systems/loom/internal/notify"
	"pkt.systems/loom/internal/persist"
	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

// Shell composes the tab engine with its storage, notification queue and
// event distribution.
type Shell interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Engine() *core.Engine
	Bus() *eventbus.Bus
	Notifier() *notify.Queue
}

// ShellConfig configures the compositor.
type ShellConfig struct {
	Engine schema.EngineConfig
}

// ShellDeps captures the host-side collaborators the engine drives.
type ShellDeps struct {
	Profiles  core.ProfileResolver
	Spaces    core.SpaceResolver
	Windows   core.WindowRegistry
	PageViews core.PageViewFactory
	// EventSink receives structural events in addition to the bus.
	EventSink core.EventSink
	Logger    pslog.Logger
}

// ShellOption toggles compositor components.
type ShellOption func(*shellOptions)

type shellOptions struct {
	enableBus     bool
	enableRestore bool
}

// WithEventBus enables per-window event subscriptions.
func WithEventBus() ShellOption {
	return func(o *shellOptions) { o.enableBus = true }
}

// WithSessionRestore replays persisted state at Start.
func WithSessionRestore() ShellOption {
	return func(o *shellOptions) { o.enableRestore = true }
}

type shell struct {
	log     pslog.Logger
	db      *sql.DB
	store   *persist.Store
	bus     *eventbus.Bus
	queue   *notify.Queue
	engine  *core.Engine
	restore bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	done    chan struct{}
	err     error
}

// New constructs a composable loom shell: storage is opened and migrated,
// the engine wired to the notification queue and event fanout.
func New(cfg ShellConfig, deps ShellDeps, opts ...ShellOption) (Shell, error) {
	options := shellOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	normalized, err := schema.NormalizeEngineConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}

	db, err := persist.Open(normalized.StatePath)
	if err != nil {
		return nil, err
	}
	if err := persist.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	store := persist.NewStoreWithLogger(db, log, normalized.RecentlyClosedCap)

	s := &shell{
		log:     log,
		db:      db,
		store:   store,
		restore: options.enableRestore,
		done:    make(chan struct{}),
	}

	var sink core.EventSink
	if options.enableBus {
		s.bus = eventbus.New(log)
	}
	switch {
	case deps.EventSink != nil && s.bus != nil:
		sink = eventFanout{sinks: []core.EventSink{deps.EventSink, s.bus}}
	case deps.EventSink != nil:
		sink = deps.EventSink
	case s.bus != nil:
		sink = s.bus
	}

	s.queue = notify.New(func(windowID schema.WindowID) (schema.StructuralPayload, bool) {
		return s.engine.StructuralSnapshot(windowID)
	}, normalized.DebounceWindow, log)

	engine, err := core.New(normalized, core.EngineDeps{
		Profiles:  deps.Profiles,
		Spaces:    deps.Spaces,
		Windows:   deps.Windows,
		PageViews: deps.PageViews,
		Store:     store,
		Sink:      sink,
		Notifier:  s.queue,
		Logger:    log,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

func (s *shell) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("shell already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	if s.restore {
		if err := s.engine.RestoreSession(ctx); err != nil {
			return err
		}
	}
	s.engine.Start(runCtx)
	s.log.Info("loom shell started")
	return nil
}

func (s *shell) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *shell) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := s.engine.Shutdown(ctx)
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.done)
	s.log.Info("loom shell stopped")
	return err
}

func (s *shell) Engine() *core.Engine    { return s.engine }
func (s *shell) Bus() *eventbus.Bus      { return s.bus }
func (s *shell) Notifier() *notify.Queue { return s.queue }
