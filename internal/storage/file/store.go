// Package file persists results as a single JSON array rewritten on every upsert.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/storage"
)

// ResultStore keeps records ordered by first insertion. Writers within one process are
// serialized; concurrent processes sharing the file can lose updates.
type ResultStore struct {
	path   string
	clock  crawler.Clock
	logger *zap.Logger
	mu     sync.Mutex
}

var _ crawler.ResultStore = (*ResultStore)(nil)

// New returns a store writing to path. The parent directory is created on first write.
func New(path string, clock crawler.Clock, logger *zap.Logger) (*ResultStore, error) {
	if path == "" {
		return nil, errors.New("results path is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultStore{path: path, clock: clock, logger: logger}, nil
}

// Upsert merges record into the stored entry with the same canonical URL, or appends it.
func (s *ResultStore) Upsert(_ context.Context, record crawler.ResultRecord) (crawler.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return crawler.ResultRecord{}, err
	}
	now := s.clock.Now().UTC()
	incoming := storage.Sanitize(record)
	if incoming.URL == "" {
		return crawler.ResultRecord{}, errors.New("record url is required")
	}

	var saved crawler.ResultRecord
	found := false
	for i := range records {
		if records[i].URL == incoming.URL {
			records[i] = storage.Merge(records[i], incoming, now)
			saved = records[i]
			found = true
			break
		}
	}
	if !found {
		saved = storage.Prepare(incoming, now)
		records = append(records, saved)
	}
	if err := s.write(records); err != nil {
		return crawler.ResultRecord{}, err
	}
	return saved, nil
}

// List returns every stored record in insertion order.
func (s *ResultStore) List(_ context.Context) ([]crawler.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *ResultStore) load() ([]crawler.ResultRecord, error) {
	var records []crawler.ResultRecord
	err := ReadJSON(s.path, &records, s.clock, s.logger)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []crawler.ResultRecord{}
	}
	return records, nil
}

func (s *ResultStore) write(records []crawler.ResultRecord) error {
	return WriteJSON(s.path, records)
}

// ReadJSON decodes the JSON file at path into v. A missing or empty file leaves v untouched.
// An unparsable file is moved to <path>.bak.<unixms>.json and replaced with "[]".
func ReadJSON(path string, v any, clock crawler.Clock, logger *zap.Logger) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration.
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	} else if logger != nil {
		logger.Warn("corrupt json file, backing up and resetting",
			zap.String("path", path),
			zap.Error(err),
		)
	}
	backup := fmt.Sprintf("%s.bak.%d.json", path, clock.Now().UnixMilli())
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("back up corrupt %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte("[]"), 0o600); err != nil {
		return fmt.Errorf("reset %s: %w", path, err)
	}
	return nil
}

// WriteJSON replaces the file at path with the indented encoding of v. The write goes
// through a temporary file and a rename.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
