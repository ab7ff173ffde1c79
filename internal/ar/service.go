package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoSnapshot indicates no snapshot has been loaded yet.
var ErrNoSnapshot = errors.New("ar: snapshot not loaded")

// Source supplies both record sets.
type Source interface {
	LoadRecords(ctx context.Context) ([]Invoice, []Payment, error)
}

// Store is the record repository: it loads a validated snapshot from its
// source once and swaps in a fresh one on Reload.
type Store struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	now     func() time.Time
}

// NewStore wires a Source into a Store.
func NewStore(source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{source: source, logger: logger, now: time.Now}
}

// Load returns the current snapshot, reading from the source on first use.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	return s.reloadLocked(ctx)
}

// Reload re-reads the source. On failure the previous snapshot stays current.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

// Current returns the published snapshot or ErrNoSnapshot.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

func (s *Store) reloadLocked(ctx context.Context) (*Snapshot, error) {
	if s.source == nil {
		return nil, errors.New("ar: store source not configured")
	}
	invoices, payments, err := s.source.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("ar: load records: %w", err)
	}
	snap, err := NewSnapshot(invoices, payments, s.now().UTC())
	if err != nil {
		s.logger.Error("reject snapshot", slog.Any("error", err))
		return nil, err
	}
	prev := s.current.Swap(snap)
	attrs := []any{
		slog.String("snapshot_id", snap.ID().String()),
		slog.Int("invoices", len(invoices)),
		slog.Int("payments", len(payments)),
	}
	if prev != nil {
		attrs = append(attrs, slog.Bool("changed", prev.ID() != snap.ID()))
	}
	s.logger.Info("snapshot loaded", attrs...)
	return snap, nil
}

// MemorySource serves fixed record slices.
type MemorySource struct {
	Invoices []Invoice
	Payments []Payment
}

// LoadRecords implements Source.
func (m *MemorySource) LoadRecords(ctx context.Context) ([]Invoice, []Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	invoices := make([]Invoice, len(m.Invoices))
	copy(invoices, m.Invoices)
	payments := make([]Payment, len(m.Payments))
	copy(payments, m.Payments)
	return invoices, payments, nil
}
