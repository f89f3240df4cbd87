// Package store is the relational store of a project: one SQLite file holding
// result sets, load cases, stories, elements, normalized records, the wide
// cache and comparison sets.
//
// Files are opened through a Manager, which hands out reference-counted
// handles so a file has exactly one connection pool no matter how many
// callers use it. All access goes through a Session, which owns one
// dedicated connection and is never shared between goroutines.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/AdrianZavoianu/RPS-sub000/internal/config"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

var (
	// ErrManagerClosed is returned by Acquire after Close.
	ErrManagerClosed = errors.New("store manager closed")
	// ErrHandleReleased is returned when a released handle is used again.
	ErrHandleReleased = errors.New("store handle released")
)

// Manager owns the open store files, keyed by canonical path.
type Manager struct {
	cfg    config.StoreConfig
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// NewManager creates a Manager. Zero fields of cfg fall back to the
// defaults of config.Default.
func NewManager(cfg config.StoreConfig, logger *slog.Logger) *Manager {
	def := config.Default().Store
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = def.BusyTimeout
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = def.JournalMode
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = def.ProjectName
	}
	return &Manager{
		cfg:     cfg,
		logger:  infrastructure.LoggerOrDefault(logger, "store"),
		handles: make(map[string]*Handle),
	}
}

// Handle is a reference-counted open store file.
type Handle struct {
	manager *Manager
	path    string
	db      *sql.DB
	project domain.Project
	refs    int
}

// Acquire returns the handle for path, opening the file and applying the
// schema on first use. Every successful Acquire must be paired with Release.
func (m *Manager) Acquire(ctx context.Context, path string) (*Handle, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if h, ok := m.handles[canonical]; ok {
		h.refs++
		return h, nil
	}

	h, err := m.open(ctx, canonical)
	if err != nil {
		return nil, err
	}
	m.handles[canonical] = h
	m.logger.InfoContext(ctx, "store opened",
		slog.String("path", canonical),
		slog.String("project", h.project.Name))
	return h, nil
}

// Release drops one reference. The connection pool is closed when the last
// reference goes away; only then is it safe to delete the file.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.refs <= 0 {
		return ErrHandleReleased
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(m.handles, h.path)
	m.logger.Info("store closed", slog.String("path", h.path))
	return h.db.Close()
}

// Open reports how many store files are currently open.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Close closes every handle regardless of outstanding references.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for path, h := range m.handles {
		h.refs = 0
		if err := h.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(m.handles, path)
	}
	m.closed = true
	return errors.Join(errs...)
}

func (m *Manager) open(ctx context.Context, path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %w", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", m.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open store: %w", ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping store: %w", ErrUnavailable, err)
	}
	if err := applySchema(ctx, db, m.cfg.ProjectName); err != nil {
		_ = db.Close()
		return nil, err
	}

	h := &Handle{manager: m, path: path, db: db, refs: 1}
	var created string
	if err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM project WHERE id = 1`).
		Scan(&h.project.ID, &h.project.Name, &created); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load project: %w", err)
	}
	h.project.CreatedAt = parseTime(created)
	h.project.StorePath = path
	return h, nil
}

func (m *Manager) dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", m.cfg.BusyTimeout/time.Millisecond))
	q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", m.cfg.JournalMode))
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// canonicalPath resolves path to an absolute, symlink-free form so that two
// spellings of the same file share a handle.
func canonicalPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("store path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve store path: %w", err)
	}
	dir, file := filepath.Split(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Join(dir, file)); err == nil {
		return resolved, nil
	}
	return filepath.Join(dir, file), nil
}

// Path returns the canonical store path.
func (h *Handle) Path() string { return h.path }

// Project returns the project owning this store file.
func (h *Handle) Project() domain.Project { return h.project }

// Release is shorthand for h's manager Release.
func (h *Handle) Release() error { return h.manager.Release(h) }

// Session opens a session on a dedicated connection. The caller owns it and
// must Close it on every exit path.
func (h *Handle) Session(ctx context.Context) (*Session, error) {
	h.manager.mu.Lock()
	refs := h.refs
	h.manager.mu.Unlock()
	if refs <= 0 {
		return nil, ErrHandleReleased
	}

	conn, err := h.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	return &Session{conn: conn, handle: h}, nil
}
