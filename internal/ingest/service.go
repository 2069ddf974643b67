// ABOUTME: Ingest service - loads markdown and text documents from the data directory
// ABOUTME: Never refreshes: a path already in the store is skipped on later runs

package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/knowledge-gateway/internal/metrics"
	"github.com/2389/knowledge-gateway/internal/store"
)

// Report summarizes one ingest run.
type Report struct {
	Scanned  int `json:"scanned"`
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
}

// Service ingests documents from a directory into the store.
type Service struct {
	store   store.Store
	dataDir string
	workers int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates an ingest service reading from dataDir.
func NewService(st store.Store, dataDir string, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		dataDir: dataDir,
		workers: 4,
		metrics: m,
		logger:  logger.With("component", "ingest"),
	}
}

// Run scans the data directory and ingests every markdown and text file not
// already in the store. Files are processed in parallel; the first error
// aborts the run.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	if s.dataDir == "" {
		return &Report{}, nil
	}

	var paths []string
	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".markdown", ".txt":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning data directory: %w", err)
	}

	var ingested, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, path := range paths {
		g.Go(func() error {
			ok, err := s.ingestFile(gctx, path)
			if err != nil {
				return err
			}
			if ok {
				ingested.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Scanned:  len(paths),
		Ingested: int(ingested.Load()),
		Skipped:  int(skipped.Load()),
	}
	s.logger.Info("ingest run complete",
		"scanned", report.Scanned, "ingested", report.Ingested, "skipped", report.Skipped)
	return report, nil
}

// ingestFile loads one file unless its path was already ingested. Returns
// true when a document was stored.
func (s *Service) ingestFile(ctx context.Context, path string) (bool, error) {
	rel, err := filepath.Rel(s.dataDir, path)
	if err != nil {
		rel = path
	}

	if _, err := s.store.GetDocumentByPath(ctx, rel); err == nil {
		s.logger.Debug("document already ingested, skipping", "path", rel)
		return false, nil
	} else if err != store.ErrNotFound {
		return false, fmt.Errorf("checking document %s: %w", rel, err)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", rel, err)
	}

	var title, content string
	if strings.ToLower(filepath.Ext(path)) == ".txt" {
		content = string(src)
	} else {
		title, content = markdownToText(src)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	doc := &store.Document{
		ID:         uuid.New().String(),
		Path:       rel,
		Title:      title,
		Content:    content,
		IngestedAt: time.Now(),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		// A concurrent run got there first; that still counts as skipped.
		if err == store.ErrDuplicateDocument {
			return false, nil
		}
		return false, fmt.Errorf("storing %s: %w", rel, err)
	}

	if s.metrics != nil {
		s.metrics.DocumentsIngested.Inc()
	}
	s.logger.Debug("ingested document", "path", rel, "title", title, "bytes", len(content))
	return true, nil
}
