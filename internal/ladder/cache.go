package ladder

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"wc3-bridge/internal/domain"
)

// DefaultModes are present (empty) before the client pushes anything.
var DefaultModes = []string{"1v1", "2v2", "2v2arranged", "3v3", "3v3arranged", "4v4", "4v4arranged", "ffa", "sffa"}

// Cache holds the latest leaderboard snapshot per mode. Writes come from the
// bridge loop, reads from request goroutines.
type Cache struct {
	mu          sync.RWMutex
	modes       map[string][]domain.RankedPlayerRecord
	pages       map[string]domain.PageInfo
	highest     *domain.HighestRank
	lastUpdated time.Time
}

func NewCache() *Cache {
	c := &Cache{
		modes: make(map[string][]domain.RankedPlayerRecord, len(DefaultModes)),
		pages: make(map[string]domain.PageInfo),
	}
	for _, m := range DefaultModes {
		c.modes[m] = []domain.RankedPlayerRecord{}
	}
	return c
}

// Update replaces the snapshot for mode. Rows from earlier pushes never survive.
func (c *Cache) Update(mode string, records []domain.RankedPlayerRecord, page domain.PageInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.modes[mode] = slices.Clone(records)
	c.pages[mode] = page
	c.lastUpdated = time.Now()
}

// Get returns a copy of the rows for mode, empty when the mode is unseen.
func (c *Cache) Get(mode string) []domain.RankedPlayerRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := c.modes[mode]
	if len(rows) == 0 {
		return []domain.RankedPlayerRecord{}
	}
	return slices.Clone(rows)
}

func (c *Cache) Page(mode string) (domain.PageInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pages[mode]
	return p, ok
}

// Modes lists known modes, defaults first.
func (c *Cache) Modes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modeOrder()
}

func (c *Cache) modeOrder() []string {
	out := slices.Clone(DefaultModes)
	var extra []string
	for m := range c.modes {
		if !slices.Contains(DefaultModes, m) {
			extra = append(extra, m)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func (c *Cache) PlayerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, rows := range c.modes {
		n += len(rows)
	}
	return n
}

func (c *Cache) SetHighestRank(h domain.HighestRank) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highest = &h
	c.lastUpdated = time.Now()
}

func (c *Cache) HighestRank() (domain.HighestRank, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.highest == nil {
		return domain.HighestRank{}, false
	}
	return *c.highest, true
}

func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// FindByIdentity searches every mode for a row whose identity matches,
// ignoring case. It returns the row and the mode it was found in.
func (c *Cache) FindByIdentity(identity string) (domain.RankedPlayerRecord, string, bool) {
	key := domain.NormalizeIdentity(identity)
	if key == "" {
		return domain.RankedPlayerRecord{}, "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, mode := range c.modeOrder() {
		for _, rec := range c.modes[mode] {
			if strings.EqualFold(rec.BattleTag, key) {
				return rec, mode, true
			}
		}
	}
	return domain.RankedPlayerRecord{}, "", false
}

// Hit is a search result with the mode the row was found in.
type Hit struct {
	Mode   string                    `json:"mode"`
	Record domain.RankedPlayerRecord `json:"record"`
}

// Search returns rows whose identity contains query, across all modes. A
// limit of zero or less means no limit.
func (c *Cache) Search(query string, limit int) []Hit {
	q := domain.NormalizeIdentity(query)
	if q == "" {
		return []Hit{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []Hit{}
	for _, mode := range c.modeOrder() {
		for _, rec := range c.modes[mode] {
			if !strings.Contains(strings.ToLower(rec.BattleTag), q) {
				continue
			}
			out = append(out, Hit{Mode: mode, Record: rec})
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

// Snapshot captures the cache for persistence.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		LadderData:  make(map[string][]domain.RankedPlayerRecord, len(c.modes)),
		LastUpdated: c.lastUpdated,
	}
	for m, rows := range c.modes {
		snap.LadderData[m] = slices.Clone(rows)
	}
	if c.highest != nil {
		h := *c.highest
		snap.HighestRankData = &h
	}
	return snap
}

// Restore merges a persisted snapshot. Modes missing from the snapshot keep their rows.
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for m, rows := range snap.LadderData {
		if rows == nil {
			rows = []domain.RankedPlayerRecord{}
		}
		c.modes[m] = slices.Clone(rows)
	}
	if snap.HighestRankData != nil {
		h := *snap.HighestRankData
		c.highest = &h
	}
	if snap.LastUpdated.After(c.lastUpdated) {
		c.lastUpdated = snap.LastUpdated
	}
}
