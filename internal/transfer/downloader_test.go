package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davlabs/webdavfs/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Setup(slog.LevelError)
	os.Exit(m.Run())
}

// newFileServer serves content with byte-range support (http.ServeContent
// handles Range and HEAD).
func newFileServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Unix(0, 0), bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func randomContent(t *testing.T, n int) []byte {
	t.Helper()
	content := make([]byte, n)
	_, err := rand.Read(content)
	require.NoError(t, err)
	return content
}

func newTestDownloader(t *testing.T) *Downloader {
	t.Helper()
	d, err := NewDownloader(4)
	require.NoError(t, err)
	d.chunkSize = 1024
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestDownloader_ChunkedDownload(t *testing.T) {
	content := randomContent(t, 10_000)
	srv := newFileServer(t, content)
	d := newTestDownloader(t)

	job := &DownloadJob{URL: srv.URL + "/file.bin"}
	path, err := d.DownloadFile(context.Background(), job)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Final progress equals the content length and the state is finished.
	assert.Equal(t, Progress{BytesDone: 10_000, Total: 10_000}, job.State.Progress())
	st, err := job.State.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, st)
}

func TestDownloader_SingleShotWhenSmall(t *testing.T) {
	content := randomContent(t, 100)
	srv := newFileServer(t, content)
	d := newTestDownloader(t)

	job := &DownloadJob{URL: srv.URL + "/file.bin", Name: "small.bin"}
	path, err := d.DownloadFile(context.Background(), job)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloader_NameDefaultsToURLBase(t *testing.T) {
	content := randomContent(t, 64)
	srv := newFileServer(t, content)
	d := newTestDownloader(t)

	job := &DownloadJob{URL: srv.URL + "/remote/listing.xml"}
	path, err := d.DownloadFile(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "listing.xml", job.Name)
	assert.FileExists(t, path)
}

func TestDownloader_PauseDefersResumeCompletes(t *testing.T) {
	content := randomContent(t, 10_000)
	srv := newFileServer(t, content)
	d := newTestDownloader(t)

	job := &DownloadJob{URL: srv.URL + "/file.bin", State: NewState(0)}
	require.NoError(t, job.State.Pause())

	type result struct {
		path string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		path, err := d.DownloadFile(context.Background(), job)
		resCh <- result{path, err}
	}()

	select {
	case <-resCh:
		t.Fatal("download completed while paused")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, job.State.Resume())

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		got, err := os.ReadFile(res.path)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not resume")
	}
}

func TestDownloader_CancelAborts(t *testing.T) {
	content := randomContent(t, 10_000)
	srv := newFileServer(t, content)
	d := newTestDownloader(t)

	job := &DownloadJob{URL: srv.URL + "/file.bin", State: NewState(0)}
	require.NoError(t, job.State.Pause())

	errCh := make(chan error, 1)
	go func() {
		_, err := d.DownloadFile(context.Background(), job)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, job.State.Cancel())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not observe cancel")
	}
}

func TestDownloader_ProbeErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	d := newTestDownloader(t)

	_, err := d.DownloadFile(context.Background(), &DownloadJob{URL: srv.URL + "/gone"})
	assert.Error(t, err)
}

func TestDownloader_Bulk(t *testing.T) {
	content := randomContent(t, 3000)
	srv := newFileServer(t, content)
	d := newTestDownloader(t)

	jobs := []*DownloadJob{
		{URL: srv.URL + "/file.bin", Name: "a.bin"},
		{URL: srv.URL + "/file.bin", Name: "b.bin"},
		{URL: srv.URL + "/file.bin", Name: "c.bin"},
	}
	results := d.DownloadBulk(context.Background(), jobs)
	require.Len(t, results, 3)

	for _, r := range results {
		require.NoError(t, r.Error)
		got, err := os.ReadFile(r.DownloadPath)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}
}
