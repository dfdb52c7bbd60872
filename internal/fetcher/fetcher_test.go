package fetcher_test

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipfetch/zipfetch/internal/config"
	"github.com/zipfetch/zipfetch/internal/fetcher"
	"github.com/zipfetch/zipfetch/internal/journal"
	"github.com/zipfetch/zipfetch/internal/transfer"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func newTestJournal(t *testing.T) *journal.Repository {
	t.Helper()

	repo, err := journal.NewRepository(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestFetchAndUnpack(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"readme.txt": "read me",
		"bin/tool":   "tool bytes",
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	repo := newTestJournal(t)
	f := fetcher.NewWithFs(fs, config.DefaultConfig(), repo)

	err := f.FetchAndUnpack(context.Background(), server.URL+"/pkg/app.zip", "/out/app")
	require.NoError(t, err)

	readme, err := afero.ReadFile(fs, "/out/app/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "read me", string(readme))

	tool, err := afero.ReadFile(fs, "/out/app/bin/tool")
	require.NoError(t, err)
	assert.Equal(t, "tool bytes", string(tool))

	// The downloaded archive stays next to the extracted tree.
	exists, err := afero.Exists(fs, "/out/app/app.zip")
	require.NoError(t, err)
	assert.True(t, exists)

	records, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byKind := make(map[journal.Kind]*journal.Record)
	for _, rec := range records {
		byKind[rec.Kind] = rec
	}

	download := byKind[journal.KindDownload]
	require.NotNil(t, download)
	assert.Equal(t, journal.StatusCompleted, download.Status)
	assert.Equal(t, int64(len(archive)), download.Bytes)

	extractRec := byKind[journal.KindExtract]
	require.NotNil(t, extractRec)
	assert.Equal(t, journal.StatusCompleted, extractRec.Status)
}

func TestFetchFailureIsJournaled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	repo := newTestJournal(t)
	f := fetcher.NewWithFs(fs, config.DefaultConfig(), repo)

	err := f.Fetch(context.Background(), server.URL+"/app.zip", "/out/app.zip")
	require.Error(t, err)

	records, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, journal.StatusFailed, records[0].Status)
	assert.NotEmpty(t, records[0].Error)
}

func TestAbortedFetchIsJournaledAsCancelled(t *testing.T) {
	firstChunk := make(chan struct{})
	proceed := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		flusher := w.(http.Flusher)

		w.Write(bytes.Repeat([]byte("a"), 4096))
		flusher.Flush()
		close(firstChunk)

		<-proceed
		w.Write(bytes.Repeat([]byte("b"), 4096))
		flusher.Flush()
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	repo := newTestJournal(t)
	f := fetcher.NewWithFs(fs, config.DefaultConfig(), repo)

	done := make(chan error, 1)
	go func() {
		done <- f.Fetch(context.Background(), server.URL+"/big.bin", "/out/big.bin")
	}()

	<-firstChunk
	f.Tracker().RequestAbortDownload()
	close(proceed)

	select {
	case err := <-done:
		require.ErrorIs(t, err, transfer.ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not observe the abort request")
	}

	records, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, journal.StatusCancelled, records[0].Status)
}

func TestFetcherClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	f := fetcher.NewWithFs(fs, config.DefaultConfig(), nil)

	err := f.Fetch(context.Background(), server.URL+"/file.bin", "/out/file.bin")
	require.NoError(t, err)

	// Closing releases the pooled clients; a second Close is a no-op.
	f.Close()
	f.Close()
}

func TestFetcherWorksWithoutJournal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	f := fetcher.NewWithFs(fs, config.DefaultConfig(), nil)

	err := f.Fetch(context.Background(), server.URL+"/file.bin", "/out/")
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/out/file.bin")
	require.NoError(t, err)
	assert.True(t, exists)
}
