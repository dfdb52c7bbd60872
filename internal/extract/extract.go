// Package extract unpacks ZIP archives into a destination tree.
// Extraction is best-effort across entries: a single bad entry is
// logged and counted but does not stop the walk. Cancellation is
// observed between entries through the shared progress.Tracker.
package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/zipfetch/zipfetch/internal/logger"
	"github.com/zipfetch/zipfetch/internal/progress"
)

// extractBufferSize is the chunk size used when streaming entry bytes
// to disk.
const extractBufferSize = 4096

// ErrOpenArchive is returned when the archive itself cannot be read.
var ErrOpenArchive = errors.New("cannot open archive")

// Extractor unpacks ZIP archives.
type Extractor struct {
	fs      afero.Fs
	tracker *progress.Tracker
}

// New creates an Extractor writing through fs and honoring abort
// requests from tracker.
func New(fs afero.Fs, tracker *progress.Tracker) *Extractor {
	return &Extractor{
		fs:      fs,
		tracker: tracker,
	}
}

// Extract unpacks the archive at zipPath into destDir, creating
// directories as needed. Entries are processed in central-directory
// order. An abort request stops the walk cleanly; files already
// extracted remain. The returned error is nil only if the archive
// opened and every processed entry extracted successfully.
func (x *Extractor) Extract(zipPath, destDir string) error {
	x.tracker.ClearAbortUnzip()

	archive, err := x.fs.Open(zipPath)
	if err != nil {
		logger.Errorf("Error opening zip file %s: %v", zipPath, err)
		return fmt.Errorf("%w: %s", ErrOpenArchive, zipPath)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		logger.Errorf("Error opening zip file %s: %v", zipPath, err)
		return fmt.Errorf("%w: %s", ErrOpenArchive, zipPath)
	}

	reader, err := zip.NewReader(archive, info.Size())
	if err != nil {
		logger.Errorf("Error opening zip file %s: %v", zipPath, err)
		return fmt.Errorf("%w: %s", ErrOpenArchive, zipPath)
	}

	if !strings.HasSuffix(destDir, "/") {
		destDir += "/"
	}

	failed := 0
	for _, entry := range reader.File {
		if x.tracker.AbortUnzipRequested() {
			logger.Infof("Extraction aborted: %s", zipPath)
			break
		}

		if entry.Name == "" {
			continue
		}

		target := destDir + entry.Name

		// Truncation artifact from the archive producer; nothing
		// sensible can be written there.
		if strings.HasSuffix(strings.TrimSpace(target), "...") {
			continue
		}

		target = collapseSpaces(sanitizeColons(target))

		// Directory entries carry no data.
		if strings.HasSuffix(target, "/") {
			continue
		}

		if err := x.extractEntry(entry, target); err != nil {
			logger.Errorf("Error extracting %s: %v", entry.Name, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed to extract", failed, len(reader.File))
	}

	return nil
}

func (x *Extractor) extractEntry(entry *zip.File, target string) error {
	if idx := strings.LastIndex(target, "/"); idx >= 0 {
		if err := x.fs.MkdirAll(target[:idx+1], 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", target, err)
		}
	}

	in, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening entry: %w", err)
	}
	defer in.Close()

	out, err := x.fs.Create(target)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}

	buf := make([]byte, extractBufferSize)
	_, copyErr := io.CopyBuffer(out, in, buf)
	closeErr := out.Close()

	if copyErr != nil {
		return fmt.Errorf("writing %s: %w", target, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", target, closeErr)
	}

	return nil
}

// sanitizeColons replaces every colon after the first with a space. The
// first colon is assumed to be a volume designator (as in "sdmc:/") and
// is preserved; later ones are artifacts that must not survive in a
// path.
func sanitizeColons(path string) string {
	first := strings.IndexByte(path, ':')
	if first < 0 {
		return path
	}

	return path[:first+1] + strings.ReplaceAll(path[first+1:], ":", " ")
}

// collapseSpaces folds runs of doubled spaces down to a single space.
func collapseSpaces(path string) string {
	for strings.Contains(path, "  ") {
		path = strings.ReplaceAll(path, "  ", " ")
	}

	return path
}
