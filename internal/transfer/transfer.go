// Package transfer implements the single-transfer HTTP(S) download
// engine. A download blocks its caller from start to finish; progress
// and cancellation flow through a shared progress.Tracker that another
// goroutine may poll while the transfer is in flight.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/spf13/afero"

	"github.com/zipfetch/zipfetch/internal/logger"
	"github.com/zipfetch/zipfetch/internal/progress"
)

// transferBufferSize is the read granularity of the copy loop; the
// progress/abort checkpoint runs once per buffer.
const transferBufferSize = 4096

// maxClientRetries bounds how often client acquisition is retried
// before the download fails permanently.
const maxClientRetries = 3

var (
	// ErrInvalidURL is returned for URLs rejected before any I/O.
	ErrInvalidURL = errors.New("invalid url")
	// ErrNoClient is returned when no HTTP client could be acquired.
	ErrNoClient = errors.New("no http client available")
	// ErrEmptyFile is returned when the transfer succeeded but produced
	// a zero-byte file.
	ErrEmptyFile = errors.New("downloaded file is empty")
	// ErrAborted is returned when the caller requested cancellation.
	ErrAborted = errors.New("download aborted")
)

// Engine performs one HTTP(S) GET-to-file transfer at a time.
type Engine struct {
	fs      afero.Fs
	pool    *ClientPool
	tracker *progress.Tracker
}

// NewEngine creates an Engine writing through fs, drawing clients from
// pool and reporting through tracker.
func NewEngine(fs afero.Fs, pool *ClientPool, tracker *progress.Tracker) *Engine {
	return &Engine{
		fs:      fs,
		pool:    pool,
		tracker: tracker,
	}
}

// Filename derives the output filename from the final /-delimited
// segment of url.
func Filename(url string) (string, error) {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return "", fmt.Errorf("%w: no filename in %s", ErrInvalidURL, url)
	}

	return url[idx+1:], nil
}

// Download fetches url into dest. A dest ending in a path separator is
// treated as a directory and the filename is taken from the URL;
// otherwise dest names the output file. The destination directory is
// created as needed. On any failure, including a caller-requested
// abort, no partial file is left behind.
func (e *Engine) Download(ctx context.Context, url, dest string) error {
	e.tracker.ClearAbortDownload()

	dest, err := e.resolveDestination(url, dest)
	if err != nil {
		logger.Errorf("Invalid download request for %s: %v", url, err)
		return err
	}

	client, err := e.acquireClient()
	if err != nil {
		return err
	}
	defer e.pool.Release(client)

	out, err := e.fs.Create(dest)
	if err != nil {
		logger.Errorf("Error opening file %s: %v", dest, err)
		return fmt.Errorf("opening %s: %w", dest, err)
	}

	written, err := e.stream(ctx, client, url, out)
	closeErr := out.Close()

	if err != nil {
		if errors.Is(err, ErrAborted) {
			logger.Infof("Download aborted: %s", url)
		} else {
			logger.Errorf("Error downloading file: %v", err)
		}
		e.discard(dest)

		return err
	}
	if closeErr != nil {
		logger.Errorf("Error closing file %s: %v", dest, closeErr)
		e.discard(dest)

		return fmt.Errorf("closing %s: %w", dest, closeErr)
	}
	if written == 0 {
		logger.Errorf("Error downloading file: empty file from %s", url)
		e.discard(dest)

		return ErrEmptyFile
	}

	logger.Infof("Download complete: %s (%d bytes)", dest, written)

	return nil
}

// resolveDestination validates the request and returns the final file
// path, creating any missing directories.
func (e *Engine) resolveDestination(url, dest string) (string, error) {
	if strings.ContainsAny(url, "{}") {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}

	if strings.HasSuffix(dest, "/") {
		if err := e.fs.MkdirAll(dest, 0o755); err != nil {
			return "", fmt.Errorf("creating directory %s: %w", dest, err)
		}
		name, err := Filename(url)
		if err != nil {
			return "", err
		}

		return dest + name, nil
	}

	if idx := strings.LastIndex(dest, "/"); idx >= 0 {
		if err := e.fs.MkdirAll(dest[:idx+1], 0o755); err != nil {
			return "", fmt.Errorf("creating directory for %s: %w", dest, err)
		}
	}

	return dest, nil
}

// acquireClient draws a client from the pool, retrying a bounded number
// of times before giving up.
func (e *Engine) acquireClient() (*http.Client, error) {
	for attempt := 1; attempt <= maxClientRetries; attempt++ {
		client, err := e.pool.Acquire()
		if err == nil {
			return client, nil
		}
		logger.Warnf("Error acquiring http client (attempt %d/%d): %v", attempt, maxClientRetries, err)
	}

	logger.Errorf("Error acquiring http client after %d attempts", maxClientRetries)

	return nil, ErrNoClient
}

// stream performs the GET and copies the body to out in fixed-size
// chunks, running the progress/abort checkpoint after each chunk.
func (e *Engine) stream(ctx context.Context, client *http.Client, url string, out io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	req.Header.Set("User-Agent", e.pool.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	total := resp.ContentLength

	var written int64
	buf := make([]byte, transferBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)

			if !e.checkpoint(total, written) {
				return written, ErrAborted
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, readErr
		}
	}

	return written, nil
}

// checkpoint publishes progress and reports whether the transfer should
// continue. An unknown content length leaves the percentage untouched;
// the abort flag is still honored.
func (e *Engine) checkpoint(total, done int64) bool {
	if total > 0 {
		e.tracker.SetPercentage(int(math.Round(float64(done) / float64(total) * 100)))
	}

	if e.tracker.AbortDownloadRequested() {
		e.tracker.Reset()
		return false
	}

	return true
}

// discard removes a partial or invalid destination file, best-effort.
func (e *Engine) discard(dest string) {
	if err := e.fs.Remove(dest); err != nil {
		logger.Debugf("Failed to remove %s: %v", dest, err)
	}
}
