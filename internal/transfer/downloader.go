package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/imroc/req/v3"
	"golang.org/x/sync/errgroup"
)

const (
	AutoDetectWorkers = 0
	DefaultWorkers    = 8

	// DefaultChunkSize is the ranged-request size; files at or below it are
	// fetched in a single request.
	DefaultChunkSize = int64(4 << 20)
)

// DownloadJob describes one file to fetch. State is optional; when nil a
// fresh State is attached before the download starts, so callers that want
// to pause, cancel or observe progress can read it back from the job.
type DownloadJob struct {
	URL   string
	Name  string
	State *State
}

// DownloadResult is the outcome of one job from a bulk download.
type DownloadResult struct {
	DownloadJob
	DownloadPath string
	Error        error
}

// Downloader fetches remote files into a temp directory with ranged GET
// requests, publishing progress and honoring pause/resume/cancel between
// chunks through each job's State. There is no retry policy; a failed chunk
// fails the download.
type Downloader struct {
	client     *req.Client
	tempDir    string
	numWorkers int
	chunkSize  int64
}

// NewDownloader creates a downloader with the given chunk-worker parallelism
// per file. Pass AutoDetectWorkers to size the pool to the CPU count.
func NewDownloader(numWorkers int) (*Downloader, error) {
	tempDir, err := os.MkdirTemp("", "webdavfs-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	if numWorkers <= AutoDetectWorkers {
		numWorkers = runtime.NumCPU()
	}

	return &Downloader{
		client:     req.C(),
		tempDir:    tempDir,
		numWorkers: numWorkers,
		chunkSize:  DefaultChunkSize,
	}, nil
}

// Stop removes the temp directory and everything downloaded into it.
func (d *Downloader) Stop() error {
	return os.RemoveAll(d.tempDir)
}

// DownloadFile fetches a single file and returns its path in the temp
// directory. If the server supports byte ranges and the file is larger than
// one chunk, it is fetched in parallel ranged requests; pause and cancel
// commands on the job's State take effect between chunks.
func (d *Downloader) DownloadFile(ctx context.Context, job *DownloadJob) (string, error) {
	if job.Name == "" {
		job.Name = filepath.Base(job.URL)
	}
	if job.State == nil {
		job.State = NewState(0)
	}

	id := uuid.NewString()
	destPath := filepath.Join(d.tempDir, job.Name)

	size, ranged, err := d.probe(ctx, job.URL)
	if err != nil {
		return "", err
	}
	job.State.setTotal(uint64(size))

	slog.Debug("download start", "id", id, "url", job.URL,
		"size", humanize.IBytes(uint64(size)), "ranged", ranged)

	if !ranged || size <= d.chunkSize {
		err = d.downloadSingle(ctx, job, destPath)
	} else {
		err = d.downloadChunked(ctx, job, destPath, size)
	}
	if err != nil {
		os.Remove(destPath)
		return "", err
	}

	if size > 0 {
		job.State.SetProgress(uint64(size))
	}
	job.State.Finish()
	slog.Debug("download done", "id", id, "path", destPath)
	return destPath, nil
}

// probe asks the server for the file size and range support.
func (d *Downloader) probe(ctx context.Context, url string) (int64, bool, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		Head(url)
	if err != nil {
		return 0, false, fmt.Errorf("failed to probe %q: %w", url, err)
	}
	if resp.IsErrorState() {
		return 0, false, fmt.Errorf("failed to probe %q: %s", url, resp.Status)
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}
	ranged := strings.EqualFold(resp.GetHeader("Accept-Ranges"), "bytes")
	return size, ranged && size > 0, nil
}

func (d *Downloader) downloadSingle(ctx context.Context, job *DownloadJob, destPath string) error {
	if st, err := job.State.AwaitRunning(ctx); err != nil {
		return err
	} else if st != StatusRunning {
		return ErrCanceled
	}

	resp, err := d.client.R().
		DisableAutoReadResponse().
		SetContext(ctx).
		SetOutputFile(destPath).
		SetDownloadCallback(func(info req.DownloadInfo) {
			job.State.SetProgress(uint64(info.DownloadedSize))
		}).
		Get(job.URL)
	if err != nil {
		return fmt.Errorf("failed to download %q: %w", job.URL, err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("failed to download %q: %s", job.URL, resp.Status)
	}
	return nil
}

func (d *Downloader) downloadChunked(ctx context.Context, job *DownloadJob, destPath string, size int64) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", destPath, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("failed to preallocate %q: %w", destPath, err)
	}

	var done atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.numWorkers)

	for _, c := range chunkPlan(size, d.chunkSize) {
		// The dispatch loop is the pause/cancel gate: no new chunk is
		// issued while the transfer is paused, and cancel stops dispatch.
		st, err := job.State.AwaitRunning(gctx)
		if err != nil {
			_ = g.Wait()
			return err
		}
		if st != StatusRunning {
			_ = g.Wait()
			return ErrCanceled
		}

		g.Go(func() error {
			if err := d.downloadRange(gctx, job.URL, f, c); err != nil {
				return err
			}
			job.State.SetProgress(done.Add(uint64(c.length())))
			return nil
		})
	}

	return g.Wait()
}

// downloadRange fetches one byte range and writes it at its offset.
func (d *Downloader) downloadRange(ctx context.Context, url string, f *os.File, c chunk) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Range", fmt.Sprintf("bytes=%d-%d", c.start, c.end)).
		Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch range %d-%d of %q: %w", c.start, c.end, url, err)
	}
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("failed to fetch range %d-%d of %q: %s", c.start, c.end, url, resp.Status)
	}

	body := resp.Bytes()
	if int64(len(body)) != c.length() {
		return fmt.Errorf("short range %d-%d of %q: got %d bytes", c.start, c.end, url, len(body))
	}
	if _, err := f.WriteAt(body, c.start); err != nil {
		return fmt.Errorf("failed to write %q at %d: %w", f.Name(), c.start, err)
	}
	return nil
}

// DownloadBulkChan downloads jobs from a channel with a fixed worker pool and
// streams results as they complete. The results channel closes once the input
// channel is closed and drained.
func (d *Downloader) DownloadBulkChan(ctx context.Context, jobs <-chan *DownloadJob) <-chan *DownloadResult {
	results := make(chan *DownloadResult)

	var wg sync.WaitGroup
	wg.Add(d.numWorkers)

	for range d.numWorkers {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					path, err := d.DownloadFile(ctx, job)
					results <- &DownloadResult{
						DownloadJob:  *job,
						DownloadPath: path,
						Error:        err,
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// DownloadBulk is the slice convenience over DownloadBulkChan.
func (d *Downloader) DownloadBulk(ctx context.Context, jobs []*DownloadJob) []*DownloadResult {
	in := make(chan *DownloadJob, len(jobs))
	for _, j := range jobs {
		in <- j
	}
	close(in)

	results := make([]*DownloadResult, 0, len(jobs))
	for r := range d.DownloadBulkChan(ctx, in) {
		if r.Error != nil && !errors.Is(r.Error, ErrCanceled) {
			slog.Error("download failed", "url", r.URL, "error", r.Error)
		}
		results = append(results, r)
	}
	return results
}
