package ladder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"wc3-bridge/internal/domain"

	"github.com/rs/zerolog"
)

// Snapshot is the on-disk form of the cache.
type Snapshot struct {
	LadderData      map[string][]domain.RankedPlayerRecord `json:"ladderData"`
	HighestRankData *domain.HighestRank                    `json:"highestRankData"`
	LastUpdated     time.Time                              `json:"lastUpdated"`
}

type rawSnapshot struct {
	LadderData      map[string]json.RawMessage `json:"ladderData"`
	HighestRankData json.RawMessage            `json:"highestRankData"`
	LastUpdated     string                     `json:"lastUpdated"`
}

type SnapshotStore struct {
	path   string
	logger zerolog.Logger
}

func NewSnapshotStore(path string, logger zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		path:   path,
		logger: logger.With().Str("component", "ladder_snapshot").Logger(),
	}
}

// Load reads the snapshot file. A missing file yields an empty snapshot.
// Modes whose value is not an array are skipped, as are rows that do not decode.
func (s *SnapshotStore) Load() (Snapshot, error) {
	snap := Snapshot{LadderData: map[string][]domain.RankedPlayerRecord{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug().Str("path", s.path).Msg("no ladder snapshot on disk")
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("failed to read ladder snapshot: %w", err)
	}

	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return snap, fmt.Errorf("failed to decode ladder snapshot: %w", err)
	}

	for mode, rows := range raw.LadderData {
		trimmed := bytes.TrimSpace(rows)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			s.logger.Warn().Str("mode", mode).Msg("skipping non-array ladder snapshot entry")
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			s.logger.Warn().Err(err).Str("mode", mode).Msg("skipping unreadable ladder snapshot entry")
			continue
		}
		records := make([]domain.RankedPlayerRecord, 0, len(items))
		for i, item := range items {
			var rec domain.RankedPlayerRecord
			if err := json.Unmarshal(item, &rec); err != nil {
				s.logger.Warn().Err(err).Str("mode", mode).Int("row", i).Msg("skipping unreadable ladder snapshot row")
				continue
			}
			records = append(records, rec)
		}
		snap.LadderData[mode] = records
	}

	if len(raw.HighestRankData) > 0 && !bytes.Equal(bytes.TrimSpace(raw.HighestRankData), []byte("null")) {
		var h domain.HighestRank
		if err := json.Unmarshal(raw.HighestRankData, &h); err != nil {
			s.logger.Warn().Err(err).Msg("skipping unreadable highest rank record")
		} else {
			snap.HighestRankData = &h
		}
	}

	if raw.LastUpdated != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw.LastUpdated); err == nil {
			snap.LastUpdated = t
		}
	}

	s.logger.Info().
		Str("path", s.path).
		Int("modes", len(snap.LadderData)).
		Msg("ladder snapshot loaded")

	return snap, nil
}

// Save writes the snapshot through a temp file and rename so readers never see a partial file.
func (s *SnapshotStore) Save(snap Snapshot) error {
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = time.Now()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ladder snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write ladder snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close ladder snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace ladder snapshot: %w", err)
	}

	s.logger.Debug().Str("path", s.path).Msg("ladder snapshot saved")
	return nil
}
