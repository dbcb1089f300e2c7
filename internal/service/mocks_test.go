package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
	"github.com/johanherman/snpseq-archive-db/internal/repository"
)

// --- In-memory хранилище ---

// memStore — in-memory реализация репозиториев и Transactor для unit-тестов.
// Транзакции не изолированы: WithinTx просто вызывает fn под мьютексом.
type memStore struct {
	mu       sync.Mutex
	archives []*model.Archive
	events   map[model.EventKind][]*model.Event
	nextID   map[model.EventKind]int64

	// getOrCreateErr — ошибки, возвращаемые GetOrCreate по очереди перед нормальной работой
	getOrCreateErr []error
	getOrCreateN   int
	appendErr      error
}

func newMemStore() *memStore {
	return &memStore{
		events: make(map[model.EventKind][]*model.Event),
		nextID: make(map[model.EventKind]int64),
	}
}

func (s *memStore) WithinTx(_ context.Context, fn func(repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(repository.Repositories{
		Archives: memArchives{s},
		Events:   memEvents{s},
	})
}

func (s *memStore) archiveRepo() repository.ArchiveRepository { return lockedArchives{s} }
func (s *memStore) eventRepo() repository.EventRepository     { return lockedEvents{s} }

func (s *memStore) archiveByID(id int64) *model.Archive {
	for _, a := range s.archives {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// memArchives — ArchiveRepository без блокировки (внутри WithinTx).
type memArchives struct{ s *memStore }

func (r memArchives) GetOrCreate(_ context.Context, description, path, host string) (*model.Archive, bool, error) {
	if r.s.getOrCreateN < len(r.s.getOrCreateErr) {
		err := r.s.getOrCreateErr[r.s.getOrCreateN]
		r.s.getOrCreateN++
		return nil, false, err
	}
	r.s.getOrCreateN++
	for _, a := range r.s.archives {
		if a.Description == description {
			return a, false, nil
		}
	}
	a := &model.Archive{
		ID:          int64(len(r.s.archives) + 1),
		Description: description,
		Path:        path,
		Host:        host,
		CreatedAt:   time.Now().UTC(),
	}
	r.s.archives = append(r.s.archives, a)
	return a, true, nil
}

func (r memArchives) GetByDescription(_ context.Context, description string) (*model.Archive, error) {
	for _, a := range r.s.archives {
		if a.Description == description {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memArchives) Count(_ context.Context) (int, error) {
	return len(r.s.archives), nil
}

// memEvents — EventRepository без блокировки (внутри WithinTx).
type memEvents struct{ s *memStore }

func (r memEvents) Append(_ context.Context, kind model.EventKind, archiveID int64, ts time.Time) (*model.Event, error) {
	if r.s.appendErr != nil {
		return nil, r.s.appendErr
	}
	r.s.nextID[kind]++
	e := &model.Event{ID: r.s.nextID[kind], Kind: kind, ArchiveID: archiveID, Timestamp: ts}
	r.s.events[kind] = append(r.s.events[kind], e)
	return e, nil
}

func (r memEvents) Latest(_ context.Context, kind model.EventKind, archiveID *int64) (*model.EventRecord, error) {
	var latest *model.Event
	for _, e := range r.s.events[kind] {
		if archiveID != nil && e.ArchiveID != *archiveID {
			continue
		}
		if latest == nil || e.Timestamp.After(latest.Timestamp) ||
			(e.Timestamp.Equal(latest.Timestamp) && e.ID > latest.ID) {
			latest = e
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return model.NewEventRecord(latest, r.s.archiveByID(latest.ArchiveID)), nil
}

func (r memEvents) ListByArchive(_ context.Context, kind model.EventKind, archiveID int64) ([]*model.Event, error) {
	var out []*model.Event
	for _, e := range r.s.events[kind] {
		if e.ArchiveID == archiveID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (r memEvents) UnverifiedUploads(_ context.Context, from, to time.Time) ([]*model.Candidate, error) {
	verified := make(map[int64]bool)
	for _, e := range r.s.events[model.EventVerification] {
		verified[e.ArchiveID] = true
	}

	earliest := make(map[int64]time.Time)
	for _, e := range r.s.events[model.EventUpload] {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) || verified[e.ArchiveID] {
			continue
		}
		if ts, ok := earliest[e.ArchiveID]; !ok || e.Timestamp.Before(ts) {
			earliest[e.ArchiveID] = e.Timestamp
		}
	}

	var out []*model.Candidate
	for _, a := range r.s.archives {
		ts, ok := earliest[a.ID]
		if !ok {
			continue
		}
		out = append(out, &model.Candidate{
			ArchiveID:   a.ID,
			Description: a.Description,
			Path:        a.Path,
			Host:        a.Host,
			UploadedAt:  ts,
		})
	}
	return out, nil
}

// lockedArchives/lockedEvents — те же репозитории с блокировкой, для чтения вне WithinTx.
type lockedArchives struct{ s *memStore }

func (r lockedArchives) GetOrCreate(ctx context.Context, d, p, h string) (*model.Archive, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memArchives(r).GetOrCreate(ctx, d, p, h)
}

func (r lockedArchives) GetByDescription(ctx context.Context, d string) (*model.Archive, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memArchives(r).GetByDescription(ctx, d)
}

func (r lockedArchives) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memArchives(r).Count(ctx)
}

type lockedEvents struct{ s *memStore }

func (r lockedEvents) Append(ctx context.Context, kind model.EventKind, id int64, ts time.Time) (*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memEvents(r).Append(ctx, kind, id, ts)
}

func (r lockedEvents) Latest(ctx context.Context, kind model.EventKind, id *int64) (*model.EventRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memEvents(r).Latest(ctx, kind, id)
}

func (r lockedEvents) ListByArchive(ctx context.Context, kind model.EventKind, id int64) ([]*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memEvents(r).ListByArchive(ctx, kind, id)
}

func (r lockedEvents) UnverifiedUploads(ctx context.Context, from, to time.Time) ([]*model.Candidate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return memEvents(r).UnverifiedUploads(ctx, from, to)
}

// --- Моки с функциями ---

// mockEventRepo — мок EventRepository для сценариев с ошибками.
type mockEventRepo struct {
	repository.EventRepository
	unverifiedFn func(ctx context.Context, from, to time.Time) ([]*model.Candidate, error)
	latestFn     func(ctx context.Context, kind model.EventKind, archiveID *int64) (*model.EventRecord, error)
}

func (m *mockEventRepo) UnverifiedUploads(ctx context.Context, from, to time.Time) ([]*model.Candidate, error) {
	if m.unverifiedFn != nil {
		return m.unverifiedFn(ctx, from, to)
	}
	return nil, nil
}

func (m *mockEventRepo) Latest(ctx context.Context, kind model.EventKind, archiveID *int64) (*model.EventRecord, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, kind, archiveID)
	}
	return nil, repository.ErrNotFound
}

// fixedRand — детерминированный Rand, всегда возвращает idx (по модулю n).
type fixedRand struct {
	idx   int
	calls []int
}

func (r *fixedRand) IntN(n int) int {
	r.calls = append(r.calls, n)
	return r.idx % n
}

// fixedClock возвращает часы, всегда показывающие t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
