package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/config"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

const (
	defaultResultLimit = 100
	maxResultLimit     = 1000
	storeTimeout       = 5 * time.Second
)

type scanRequest struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Schema     map[string]string `json:"schema,omitempty"`
	SaveConfig bool              `json:"save_config,omitempty"`
}

type scanResponse struct {
	JobKey string `json:"job_key"`
	URL    string `json:"url"`
	Added  bool   `json:"added"`
	Saved  bool   `json:"saved"`
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	stats, err := s.deps.Queue.Stats(ctx)
	if err != nil {
		s.logger.Error("queue stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listResults handles GET /v1/results?limit=&offset=. Records come back in store order.
func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultResultLimit, maxResultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	records, err := s.deps.Results.List(ctx)
	if err != nil {
		s.logger.Error("list results failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	total := len(records)
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"results": page(records, limit, offset),
	})
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sites == nil {
		writeError(w, http.StatusServiceUnavailable, "sites file not configured")
		return
	}
	sites, err := s.deps.Sites.Load()
	if err != nil {
		s.logger.Error("load sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load sites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// submitScan handles POST /v1/scans. It enqueues a depth-0 job for the site and, when
// save_config is set, stores the site so later runs seed it too.
func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	site := crawler.Site{Name: req.Name, URL: req.URL, Schema: req.Schema}
	if err := config.ValidateSite(site); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved := false
	if req.SaveConfig {
		if s.deps.Sites == nil {
			writeError(w, http.StatusServiceUnavailable, "sites file not configured")
			return
		}
		if err := s.deps.Sites.Upsert(site); err != nil {
			s.logger.Error("save site failed", zap.String("source", site.Name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save site")
			return
		}
		saved = true
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	item, added, err := s.deps.Submitter.Submit(ctx, crawler.CrawlJob{
		URL:        site.URL,
		Source:     site.Name,
		MaxDepth:   s.opts.MaxDepth,
		ChildLimit: s.opts.ChildLimit,
		Schema:     site.Schema,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.logger.Error("enqueue scan failed", zap.String("source", site.Name), zap.Error(err))
		writeError(w, status, "failed to enqueue scan")
		return
	}
	s.logger.Info("scan submitted",
		zap.String("job_key", item.Key),
		zap.String("source", site.Name),
		zap.Bool("added", added),
	)
	writeJSON(w, http.StatusAccepted, scanResponse{
		JobKey: item.Key,
		URL:    item.Job.URL,
		Added:  added,
		Saved:  saved,
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func page(records []crawler.ResultRecord, limit, offset int) []crawler.ResultRecord {
	if offset >= len(records) {
		return []crawler.ResultRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}
