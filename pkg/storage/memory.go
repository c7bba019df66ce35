package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// MemoryStore keeps everything in process. The default backend for
// tests and single-node batch analysis. Events evict oldest-first once
// MaxSize is reached; reads return records in timestamp order.
type MemoryStore struct {
	logger  *zap.Logger
	maxSize int
	maxAge  time.Duration

	mu sync.RWMutex

	events    map[string]*domain.Event
	eventIDs  []string // insertion order, oldest first
	byEntity  map[string][]string
	corrsByID map[string]*domain.Correlation
	byEvent   map[string][]string

	analyses        map[string]*domain.RootCause
	analysisByEvent map[string]string
	recs            map[string][]*domain.Recommendation
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(cfg config.StorageConfig, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger:          logger,
		maxSize:         cfg.MaxSize,
		maxAge:          cfg.MaxAge,
		events:          make(map[string]*domain.Event),
		byEntity:        make(map[string][]string),
		corrsByID:       make(map[string]*domain.Correlation),
		byEvent:         make(map[string][]string),
		analyses:        make(map[string]*domain.RootCause),
		analysisByEvent: make(map[string]string),
		recs:            make(map[string][]*domain.Recommendation),
	}
}

func (s *MemoryStore) AppendEvent(_ context.Context, evt *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[evt.ID]; exists {
		return nil
	}

	s.events[evt.ID] = evt
	s.eventIDs = append(s.eventIDs, evt.ID)
	for _, ref := range evt.Entities {
		s.byEntity[ref.Key()] = append(s.byEntity[ref.Key()], evt.ID)
	}

	if s.maxSize > 0 && len(s.eventIDs) > s.maxSize {
		s.evictOldest()
	}
	return nil
}

// evictOldest drops the oldest event and its indexes. Caller holds the
// write lock.
func (s *MemoryStore) evictOldest() {
	oldest := s.eventIDs[0]
	s.eventIDs = s.eventIDs[1:]

	evt := s.events[oldest]
	delete(s.events, oldest)
	for _, ref := range evt.Entities {
		ids := s.byEntity[ref.Key()]
		for i, id := range ids {
			if id == oldest {
				s.byEntity[ref.Key()] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

func (s *MemoryStore) EventByID(_ context.Context, id string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[id], nil
}

func (s *MemoryStore) EventsByEntity(_ context.Context, ref domain.EntityRef, from, to time.Time) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Event
	for _, id := range s.byEntity[ref.Key()] {
		evt := s.events[id]
		if evt != nil && inRange(evt.Timestamp, from, to) {
			out = append(out, evt)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) EventsInRange(_ context.Context, from, to time.Time) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Event
	for _, evt := range s.events {
		if inRange(evt.Timestamp, from, to) {
			out = append(out, evt)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) AppendCorrelation(_ context.Context, c *domain.Correlation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.corrsByID[c.ID]; exists {
		return nil
	}
	s.corrsByID[c.ID] = c
	s.byEvent[c.PrimaryEventID] = append(s.byEvent[c.PrimaryEventID], c.ID)
	s.byEvent[c.SecondaryEventID] = append(s.byEvent[c.SecondaryEventID], c.ID)
	return nil
}

func (s *MemoryStore) CorrelationsForEvent(_ context.Context, eventID string) ([]*domain.Correlation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Correlation
	for _, id := range s.byEvent[eventID] {
		if c := s.corrsByID[id]; c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) CorrelationsInRange(_ context.Context, from, to time.Time) ([]*domain.Correlation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Correlation
	for _, c := range s.corrsByID {
		if inRange(c.CreatedAt, from, to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveAnalysis(_ context.Context, rc *domain.RootCause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[rc.AnalysisID] = rc
	s.analysisByEvent[rc.SubjectEventID] = rc.AnalysisID
	return nil
}

func (s *MemoryStore) AnalysisByID(_ context.Context, analysisID string) (*domain.RootCause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rc, ok := s.analyses[analysisID]
	if !ok {
		return nil, &NotFoundError{Kind: "analysis", Key: analysisID}
	}
	return rc, nil
}

func (s *MemoryStore) AnalysisForEvent(_ context.Context, subjectEventID string) (*domain.RootCause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.analysisByEvent[subjectEventID]
	if !ok {
		return nil, &NotFoundError{Kind: "analysis for event", Key: subjectEventID}
	}
	return s.analyses[id], nil
}

func (s *MemoryStore) AnalysesInRange(_ context.Context, from, to time.Time) ([]*domain.RootCause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.RootCause
	for _, rc := range s.analyses {
		if inRange(rc.CreatedAt, from, to) {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AppendRecommendations(_ context.Context, recs []*domain.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if s.hasRecommendation(rec) {
			continue
		}
		s.recs[rec.RootCauseID] = append(s.recs[rec.RootCauseID], rec)
	}
	return nil
}

func (s *MemoryStore) hasRecommendation(rec *domain.Recommendation) bool {
	for _, existing := range s.recs[rec.RootCauseID] {
		if existing.ID == rec.ID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) RecommendationsForAnalysis(_ context.Context, analysisID string) ([]*domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recs[analysisID], nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

func sortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
}
