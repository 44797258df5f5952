// Package importer orchestrates a score import end to end: parse,
// convert, persist, then aggregate PBs and profile stats. One import
// per user runs at a time; the pipeline is atomic per score, not per
// batch, so a half-failed import still lands its good scores.
package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"rhythm-tracker/internal/converter"
	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/lock"
	"rhythm-tracker/internal/orphan"
	"rhythm-tracker/internal/pb"
	"rhythm-tracker/internal/rating"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/ugs"
)

// Status is the lifecycle of one import run. Terminal states are Done
// and Failed; everything else means the import is still in flight.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusParsing     Status = "PARSING"
	StatusConverting  Status = "CONVERTING"
	StatusPersisting  Status = "PERSISTING"
	StatusAggregating Status = "AGGREGATING"
	StatusDone        Status = "DONE"
	StatusFailed      Status = "FAILED"
)

type Importer struct {
	registry *converter.Registry
	scores   *repository.ScoreRepository
	imports  *repository.ImportRepository
	engine   *rating.Engine
	pbs      *pb.Service
	stats    *ugs.Service
	orphans  *orphan.Service
	locker   lock.UserLocker

	lockTries int
	lockDelay time.Duration

	tracker *tracker
	logger  zerolog.Logger
}

type Params struct {
	Registry *converter.Registry
	Scores   *repository.ScoreRepository
	Imports  *repository.ImportRepository
	Engine   *rating.Engine
	PBs      *pb.Service
	Stats    *ugs.Service
	Orphans  *orphan.Service
	Locker   lock.UserLocker

	LockTries int
	LockDelay time.Duration

	Logger zerolog.Logger
}

func New(p Params) *Importer {
	return &Importer{
		registry:  p.Registry,
		scores:    p.Scores,
		imports:   p.Imports,
		engine:    p.Engine,
		pbs:       p.PBs,
		stats:     p.Stats,
		orphans:   p.Orphans,
		locker:    p.Locker,
		lockTries: p.LockTries,
		lockDelay: p.LockDelay,
		tracker:   newTracker(),
		logger:    p.Logger,
	}
}

// Import runs the whole pipeline for one user's payload and returns
// the finished import document. The user's import lock is held for the
// duration; a second import for the same user backs off and eventually
// fails with lock.ErrLockExhausted.
func (i *Importer) Import(ctx context.Context, userID int, importTypeName string, payload []byte, userIntent bool) (*domain.ImportDocument, error) {
	it := i.registry.Get(importTypeName)
	if it == nil {
		return nil, fmt.Errorf("unknown import type %q", importTypeName)
	}

	if err := lock.Acquire(ctx, i.locker, userID, i.lockTries, i.lockDelay); err != nil {
		return nil, err
	}
	defer i.locker.Release(userID)

	importID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate import id: %w", err)
	}

	i.tracker.set(importID, StatusPending)

	log := i.logger.With().
		Str("import_id", importID).
		Int("user_id", userID).
		Str("import_type", importTypeName).
		Logger()

	doc, err := i.run(ctx, importID, userID, it, payload, userIntent, log)
	if err != nil {
		i.tracker.set(importID, StatusFailed)
		log.Error().Err(err).Msg("import failed")
		return nil, err
	}

	i.tracker.remove(importID)
	return doc, nil
}

// ImportStatus reports where an import is. In-flight imports come from
// the in-memory tracker; finished ones resolve to their stored
// document. An unknown import yields ("", nil, nil).
func (i *Importer) ImportStatus(ctx context.Context, importID string) (Status, *domain.ImportDocument, error) {
	if s, ok := i.tracker.get(importID); ok {
		return s, nil, nil
	}

	doc, err := i.imports.GetByImportID(ctx, importID)
	if err != nil {
		return "", nil, err
	}
	if doc == nil {
		return "", nil, nil
	}
	return StatusDone, doc, nil
}

type tracker struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

func newTracker() *tracker {
	return &tracker{statuses: make(map[string]Status)}
}

func (t *tracker) set(importID string, s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[importID] = s
}

func (t *tracker) get(importID string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[importID]
	return s, ok
}

func (t *tracker) remove(importID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, importID)
}
