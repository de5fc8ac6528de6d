package profile

import (
	"maps"
	"time"
	"wc3-bridge/internal/domain"
)

// Fragments is the accumulator for one identity.
type Fragments struct {
	BasicData          map[string]any
	Seasons            any
	SeasonStats        []domain.Season
	HasSeasons         bool
	MatchHistoryByMode map[string]domain.MatchStat
	FirstSeen          time.Time
}

func (f *Fragments) complete() bool {
	return f.BasicData != nil && f.HasSeasons
}

// FragmentStore keys accumulators by normalized identity. It is owned by the
// Resolver and shares its single-goroutine discipline.
type FragmentStore struct {
	entries map[string]*Fragments
	now     func() time.Time
}

func NewFragmentStore() *FragmentStore {
	return &FragmentStore{
		entries: make(map[string]*Fragments),
		now:     time.Now,
	}
}

func (s *FragmentStore) Get(key string) (*Fragments, bool) {
	f, ok := s.entries[key]
	return f, ok
}

func (s *FragmentStore) ensure(key string) *Fragments {
	f, ok := s.entries[key]
	if !ok {
		f = &Fragments{
			MatchHistoryByMode: map[string]domain.MatchStat{},
			FirstSeen:          s.now(),
		}
		s.entries[key] = f
	}
	return f
}

func (s *FragmentStore) SetBasic(key string, fields map[string]any) {
	s.ensure(key).BasicData = maps.Clone(fields)
}

func (s *FragmentStore) SetSeasons(key string, raw any, typed []domain.Season) {
	f := s.ensure(key)
	f.Seasons = raw
	f.SeasonStats = typed
	f.HasSeasons = true
}

func (s *FragmentStore) AddMatchHistory(key, mode string, st domain.MatchStat) {
	s.ensure(key).MatchHistoryByMode[mode] = st
}

func (s *FragmentStore) Delete(key string) {
	delete(s.entries, key)
}

func (s *FragmentStore) Len() int {
	return len(s.entries)
}
