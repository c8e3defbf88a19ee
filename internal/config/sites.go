package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/storage/file"
)

// Sites reads and updates the scan target file, a JSON array of {name, url, schema?}.
type Sites struct {
	path   string
	clock  crawler.Clock
	logger *zap.Logger
	mu     sync.Mutex
}

// NewSites returns a Sites bound to path.
func NewSites(path string, clock crawler.Clock, logger *zap.Logger) *Sites {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sites{path: path, clock: clock, logger: logger}
}

// Path returns the file location.
func (s *Sites) Path() string {
	return s.path
}

// Load returns every valid site. Entries failing validation are logged and skipped; a
// corrupt file is backed up and treated as empty.
func (s *Sites) Load() ([]crawler.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Sites) load() ([]crawler.Site, error) {
	var raw []crawler.Site
	if err := file.ReadJSON(s.path, &raw, s.clock, s.logger); err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}
	sites := make([]crawler.Site, 0, len(raw))
	for i, site := range raw {
		if err := ValidateSite(site); err != nil {
			s.logger.Warn("skipping invalid site entry",
				zap.Int("index", i),
				zap.String("name", site.Name),
				zap.Error(err),
			)
			continue
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// Upsert replaces the site with the same name, or appends it, and rewrites the file. Only
// the incoming site is validated; other entries are written back as they were read.
func (s *Sites) Upsert(site crawler.Site) error {
	if err := ValidateSite(site); err != nil {
		return err
	}
	encoded, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("encode site %q: %w", site.Name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []json.RawMessage
	if err := file.ReadJSON(s.path, &entries, s.clock, s.logger); err != nil {
		return fmt.Errorf("load sites: %w", err)
	}
	replaced := false
	for i, entry := range entries {
		var named struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(entry, &named) != nil || named.Name != site.Name {
			continue
		}
		entries[i] = encoded
		replaced = true
		break
	}
	if !replaced {
		entries = append(entries, encoded)
	}
	if err := file.WriteJSON(s.path, entries); err != nil {
		return fmt.Errorf("save sites: %w", err)
	}
	return nil
}

// ValidateSite checks a site entry's struct tags (name required, url required and valid).
func ValidateSite(site crawler.Site) error {
	if err := validate.Struct(site); err != nil {
		return fmt.Errorf("invalid site %q: %w", site.Name, err)
	}
	return nil
}
