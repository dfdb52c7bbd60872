// Package fetcher wires the transfer engine, the archive extractor and
// the journal behind one front door. A Fetcher runs a single operation
// at a time on the calling goroutine; observers poll its Tracker from
// elsewhere.
package fetcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/zipfetch/zipfetch/internal/config"
	"github.com/zipfetch/zipfetch/internal/extract"
	"github.com/zipfetch/zipfetch/internal/journal"
	"github.com/zipfetch/zipfetch/internal/logger"
	"github.com/zipfetch/zipfetch/internal/progress"
	"github.com/zipfetch/zipfetch/internal/transfer"
)

// Fetcher coordinates downloads and extractions.
type Fetcher struct {
	fs        afero.Fs
	tracker   *progress.Tracker
	pool      *transfer.ClientPool
	engine    *transfer.Engine
	extractor *extract.Extractor
	repo      *journal.Repository
}

// New creates a Fetcher operating on the real filesystem. repo may be
// nil to run without a journal.
func New(cfg *config.Config, repo *journal.Repository) *Fetcher {
	return NewWithFs(afero.NewOsFs(), cfg, repo)
}

// NewWithFs creates a Fetcher writing through fs.
func NewWithFs(fs afero.Fs, cfg *config.Config, repo *journal.Repository) *Fetcher {
	tracker := progress.NewTracker()
	pool := transfer.NewClientPool(transfer.ClientOptions{
		UserAgent:           cfg.UserAgent,
		MaxRedirects:        cfg.HTTP.MaxRedirects,
		CACertFile:          cfg.HTTP.CACertFile,
		DialTimeout:         cfg.HTTP.DialTimeout,
		IdleConnTimeout:     cfg.HTTP.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.HTTP.TLSHandshakeTimeout,
	})

	return &Fetcher{
		fs:        fs,
		tracker:   tracker,
		pool:      pool,
		engine:    transfer.NewEngine(fs, pool, tracker),
		extractor: extract.New(fs, tracker),
		repo:      repo,
	}
}

// Close releases the idle HTTP clients held by the pool. The journal is
// owned by the caller and stays open.
func (f *Fetcher) Close() {
	f.pool.Close()
}

// Tracker returns the shared progress/abort state for this Fetcher.
// Callers on other goroutines poll and cancel through it.
func (f *Fetcher) Tracker() *progress.Tracker {
	return f.tracker
}

// Fetch downloads url to dest and journals the outcome.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	rec := f.begin(journal.KindDownload, url, dest)

	err := f.engine.Download(ctx, url, dest)
	if err == nil {
		rec.Bytes = f.resultSize(url, dest)
	}
	f.finish(rec, err)

	return err
}

// Unpack extracts the archive at zipPath into destDir and journals the
// outcome.
func (f *Fetcher) Unpack(zipPath, destDir string) error {
	rec := f.begin(journal.KindExtract, zipPath, destDir)

	err := f.extractor.Extract(zipPath, destDir)
	f.finish(rec, err)

	return err
}

// FetchAndUnpack downloads an archive into destDir and extracts it in
// place. The archive file is kept next to the extracted tree.
func (f *Fetcher) FetchAndUnpack(ctx context.Context, url, destDir string) error {
	if !strings.HasSuffix(destDir, "/") {
		destDir += "/"
	}

	if err := f.Fetch(ctx, url, destDir); err != nil {
		return err
	}

	name, err := transfer.Filename(url)
	if err != nil {
		return err
	}

	return f.Unpack(destDir+name, destDir)
}

func (f *Fetcher) begin(kind journal.Kind, source, dest string) *journal.Record {
	rec := &journal.Record{
		ID:          uuid.New(),
		Kind:        kind,
		Source:      source,
		Destination: dest,
		Status:      journal.StatusActive,
		StartedAt:   time.Now(),
	}
	f.record(rec)

	return rec
}

func (f *Fetcher) finish(rec *journal.Record, err error) {
	rec.FinishedAt = time.Now()

	switch {
	case err == nil:
		rec.Status = journal.StatusCompleted
	case errors.Is(err, transfer.ErrAborted):
		rec.Status = journal.StatusCancelled
	default:
		rec.Status = journal.StatusFailed
		rec.Error = err.Error()
	}

	f.record(rec)
}

// record persists a journal entry, best-effort.
func (f *Fetcher) record(rec *journal.Record) {
	if f.repo == nil {
		return
	}
	if err := f.repo.Save(rec); err != nil {
		logger.Warnf("Failed to save journal record %s: %v", rec.ID, err)
	}
}

// resultSize reports the size of a completed download, resolving the
// directory-destination case the same way the engine does.
func (f *Fetcher) resultSize(url, dest string) int64 {
	if strings.HasSuffix(dest, "/") {
		name, err := transfer.Filename(url)
		if err != nil {
			return 0
		}
		dest += name
	}

	info, err := f.fs.Stat(dest)
	if err != nil {
		return 0
	}

	return info.Size()
}
