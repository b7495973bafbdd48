package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/filter"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateConnecting
	StateAvailable
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateAvailable:
		return "available"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultPollInterval is how often WaitForAvailability rechecks the state.
const DefaultPollInterval = 500 * time.Millisecond

// Config holds the pool settings.
type Config struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
	PollInterval   time.Duration

	// Target names the server in logs and status output. It never carries
	// the password.
	Target string

	// Tables are probed with a cheap SELECT after connecting.
	Tables []string
}

// Opener opens a pool for a DSN.
type Opener func(ctx context.Context, cfg Config) (database.Querier, error)

// Option customizes a Manager.
type Option func(*Manager)

// WithOpener replaces the pgxpool opener.
func WithOpener(open Opener) Option {
	return func(m *Manager) { m.open = open }
}

// Manager owns the connection pool and gates access to it until it is
// available. It is safe for concurrent use.
type Manager struct {
	cfg     Config
	open    Opener
	log     zerolog.Logger
	session string

	initMu sync.Mutex // serializes Initialize and Shutdown

	mu       sync.RWMutex
	pool     database.Querier
	state    State
	waitLogs bool
}

// NewManager creates a Manager. Nothing is opened until Initialize.
func NewManager(cfg Config, log zerolog.Logger, opts ...Option) *Manager {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	session := uuid.NewString()
	m := &Manager{
		cfg:     cfg,
		open:    OpenPool,
		session: session,
		log:     log.With().Str("component", "pool").Str("session", session).Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenPool opens a pgx pool from cfg.
func OpenPool(ctx context.Context, cfg Config) (database.Querier, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = 0
	if cfg.ConnectTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return pool, nil
}

// ProbeOutcome is the result of one warm-up probe.
type ProbeOutcome struct {
	Table string
	Err   error
}

// WarmupReport lists the warm-up probe outcomes in table order.
type WarmupReport struct {
	Probes []ProbeOutcome
}

// Failed returns the probes that errored.
func (r *WarmupReport) Failed() []ProbeOutcome {
	if r == nil {
		return nil
	}
	var failed []ProbeOutcome
	for _, p := range r.Probes {
		if p.Err != nil {
			failed = append(failed, p)
		}
	}
	return failed
}

// Initialize opens the pool, confirms one connection works and warms up
// every configured table. Calling it while available is a no-op that returns
// a nil report. Probe failures are reported, never returned as an error.
func (m *Manager) Initialize(ctx context.Context) (*WarmupReport, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.State() == StateAvailable {
		return nil, nil
	}
	m.setState(StateConnecting)

	pool, err := m.open(ctx, m.cfg)
	if err != nil {
		m.setState(StateFailed)
		m.log.Error().Err(err).Msg("postgres connection failed")
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		m.setState(StateFailed)
		m.log.Error().Err(err).Msg("postgres connection failed")
		return nil, fmt.Errorf("ping: %w", err)
	}

	m.mu.Lock()
	m.pool = pool
	m.state = StateAvailable
	m.mu.Unlock()
	m.log.Info().Str("target", m.cfg.Target).Int32("max_conns", m.cfg.MaxConns).Msg("postgres connected")

	report := m.warmup(ctx, pool)
	if failed := report.Failed(); len(failed) > 0 {
		m.log.Warn().Msgf("table warmup: %d/%d failed", len(failed), len(report.Probes))
		for _, f := range failed {
			m.log.Warn().Str("table", f.Table).Err(f.Err).Msg("warmup probe failed")
		}
	}
	return report, nil
}

// warmup probes every table, at most MaxConns at a time.
func (m *Manager) warmup(ctx context.Context, pool database.Querier) *WarmupReport {
	report := &WarmupReport{Probes: make([]ProbeOutcome, len(m.cfg.Tables))}

	var g errgroup.Group
	g.SetLimit(int(m.cfg.MaxConns))
	for i, table := range m.cfg.Tables {
		g.Go(func() error {
			_, err := pool.Exec(ctx, fmt.Sprintf(queryProbeTable, filter.Ident(table)))
			report.Probes[i] = ProbeOutcome{Table: table, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// WaitForAvailability blocks until the pool is available, the timeout
// elapses (a Timeout error) or ctx ends.
func (m *Manager) WaitForAvailability(ctx context.Context, timeout time.Duration) error {
	if m.Ready() {
		return nil
	}

	m.mu.Lock()
	if !m.waitLogs {
		m.waitLogs = true
		m.log.Info().Msg("waiting for postgres connection")
	}
	m.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for !m.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &database.Error{
				Kind:    database.KindTimeout,
				Message: fmt.Sprintf("timed out waiting for postgres after %s", timeout),
			}
		case <-ticker.C:
		}
	}

	m.mu.Lock()
	if m.waitLogs {
		m.waitLogs = false
		m.log.Info().Msg("postgres is now available")
	}
	m.mu.Unlock()
	return nil
}

// Pool returns the live pool, or a NotInitialized error.
func (m *Manager) Pool() (database.Querier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pool == nil {
		return nil, &database.Error{Kind: database.KindNotInitialized, Message: "pool not initialized"}
	}
	return m.pool, nil
}

// Ready reports whether the pool is available.
func (m *Manager) Ready() bool {
	return m.State() == StateAvailable
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Target returns the configured server summary.
func (m *Manager) Target() string {
	return m.cfg.Target
}

// Session identifies this manager in logs.
func (m *Manager) Session() string {
	return m.session
}

// Shutdown closes the pool. It is safe to call any number of times.
func (m *Manager) Shutdown() {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	if pool != nil || m.state != StateUninitialized {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if pool != nil {
		m.log.Info().Msg("closing postgres pool")
		pool.Close()
		m.log.Info().Msg("postgres pool closed")
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
