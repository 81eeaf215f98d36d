// Package store keeps finished CPU profiles on disk.
//
// Each profile is written twice: as the devtools JSON payload
// (<id>.cpuprofile) and as a gzipped pprof file (<id>.pb.gz). A YAML
// manifest lists the stored records. Payloads are fingerprinted with
// xxh3; saving a payload identical to a stored one returns the existing
// record instead of writing a copy.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/devprof/internal/pprofconv"
	"github.com/coral-mesh/devprof/internal/protocol"
	"github.com/coral-mesh/devprof/internal/safe"
)

const (
	manifestFile = "manifest.yaml"

	// maxProfileSize bounds a stored JSON payload read back by Load.
	maxProfileSize = 512 << 20

	maxManifestSize = 16 << 20
)

// Record describes one stored profile.
type Record struct {
	ID          string    `yaml:"id"`
	GlobalID    string    `yaml:"global_id"`
	Title       string    `yaml:"title,omitempty"`
	Fingerprint string    `yaml:"fingerprint"`
	CreatedAt   time.Time `yaml:"created_at"`
	JSONFile    string    `yaml:"json_file"`
	PprofFile   string    `yaml:"pprof_file,omitempty"`
	// Duplicate is set on the record returned by Save when the payload was
	// already stored.
	Duplicate bool `yaml:"-"`
}

type manifest struct {
	Records []Record `yaml:"records"`
}

// Store is a directory of profiles.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu      sync.Mutex
	records []Record
	byPrint map[string]int
}

// Open opens the store in dir, creating the directory if needed.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	//nolint:gosec // G301: profiles are meant to be shared with other tools.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		logger:  logger.With().Str("component", "profile_store").Logger(),
		byPrint: make(map[string]int),
	}

	data, err := safe.ReadFile(filepath.Join(dir, manifestFile), &safe.ReadOptions{MaxSize: maxManifestSize})
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read store manifest: %w", err)
	default:
		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse store manifest: %w", err)
		}
		s.records = m.Records
		for i, r := range s.records {
			s.byPrint[r.Fingerprint] = i
		}
	}

	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Save stores a profile under a new record. A profile that cannot be
// converted to pprof is still stored as JSON.
func (s *Store) Save(globalID, title string, p *protocol.Profile) (Record, error) {
	if p == nil {
		return Record{}, fmt.Errorf("save %s: nil profile", globalID)
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode profile %s: %w", globalID, err)
	}
	fingerprint := strconv.FormatUint(xxh3.Hash(payload), 16)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byPrint[fingerprint]; ok {
		existing := s.records[i]
		existing.Duplicate = true
		return existing, nil
	}

	rec := Record{
		ID:          uuid.New().String(),
		GlobalID:    globalID,
		Title:       title,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
	}
	rec.JSONFile = rec.ID + ".cpuprofile"

	//nolint:gosec // G306: profiles are not sensitive.
	if err := os.WriteFile(filepath.Join(s.dir, rec.JSONFile), payload, 0644); err != nil {
		return Record{}, fmt.Errorf("failed to write profile %s: %w", globalID, err)
	}

	if err := s.writePprof(rec.ID+".pb.gz", p); err != nil {
		s.logger.Warn().Err(err).Str("global_id", globalID).Msg("Skipping pprof export")
	} else {
		rec.PprofFile = rec.ID + ".pb.gz"
	}

	s.records = append(s.records, rec)
	s.byPrint[fingerprint] = len(s.records) - 1

	if err := s.writeManifest(); err != nil {
		return Record{}, err
	}

	s.logger.Debug().Str("id", rec.ID).Str("global_id", globalID).Msg("Stored profile")
	return rec, nil
}

// List returns the stored records, oldest first.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]Record(nil), s.records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Load reads the JSON payload of a stored record.
func (s *Store) Load(id string) (*protocol.Profile, error) {
	s.mu.Lock()
	var file string
	for _, r := range s.records {
		if r.ID == id {
			file = r.JSONFile
			break
		}
	}
	s.mu.Unlock()

	if file == "" {
		return nil, fmt.Errorf("profile %s not found", id)
	}

	data, err := safe.ReadFile(filepath.Join(s.dir, file), &safe.ReadOptions{MaxSize: maxProfileSize})
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", id, err)
	}
	var p protocol.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) writePprof(name string, p *protocol.Profile) error {
	out, err := pprofconv.Convert(p)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := out.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

func (s *Store) writeManifest() error {
	data, err := yaml.Marshal(manifest{Records: s.records})
	if err != nil {
		return fmt.Errorf("failed to marshal store manifest: %w", err)
	}

	tmp := filepath.Join(s.dir, manifestFile+".tmp")
	//nolint:gosec // G306: manifest is not sensitive.
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, manifestFile)); err != nil {
		return fmt.Errorf("failed to replace store manifest: %w", err)
	}
	return nil
}
