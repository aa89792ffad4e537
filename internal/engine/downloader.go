// Package engine performs the actual byte transfer: resumable single-stream
// range downloads with integrity verification, and an opt-in multi-threaded
// mode that splits the byte range across workers.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/metrics"
	"github.com/ayanobu/nicofetch/internal/transport"
)

// blockSize is both the streaming chunk size and the resume-verification
// overlap: resuming re-requests the last block of the existing file and
// compares it byte for byte before appending.
const blockSize = 1024

// resumeState classifies an on-disk partial file against the expected total.
type resumeState int

const (
	stateNotStarted resumeState = iota
	statePartialExists
	stateResumeVerified
	stateResumeMismatch
	stateComplete
	stateCorrupt
)

// Downloader performs whole-file HTTP range downloads.
type Downloader struct {
	client *transport.Client
	log    *slog.Logger

	// TagCheck reports whether a file carries trusted container metadata,
	// written only after a completed download. Used to accept oversize
	// partial files as complete. Nil disables the check.
	TagCheck func(path string) bool
}

func NewDownloader(client *transport.Client, log *slog.Logger) *Downloader {
	return &Downloader{client: client, log: log}
}

// PartName derives the in-progress name: "video.mp4" -> "video.part.mp4".
func PartName(finalPath string) string {
	ext := filepath.Ext(finalPath)
	return strings.TrimSuffix(finalPath, ext) + ".part" + ext
}

// Fetch downloads url into finalPath, resuming a matching partial file when
// one exists. It returns true when bytes were transferred this run and
// false when the file was already complete. The rename from the part name
// to finalPath is the completion signal; it only happens after the full,
// verified length is on disk.
func (d *Downloader) Fetch(ctx context.Context, url, finalPath string, threads int) (bool, error) {
	if threads <= 0 {
		return false, fmt.Errorf("thread count must be a positive integer: %w", domain.ErrArgument)
	}

	if _, err := os.Stat(finalPath); err == nil {
		d.log.Info("file exists and appears to have been completed", "path", finalPath)
		return false, nil
	}

	total, err := d.client.Head(ctx, url)
	if err != nil {
		return false, fmt.Errorf("could not determine content length: %w", err)
	}

	partPath := PartName(finalPath)

	if threads > 1 {
		// Multi-threaded mode always starts fresh: it never verifies or
		// resumes existing partial data. Kept as a documented limitation.
		d.log.Warn("multithreaded downloads overwrite any existing partial file")
		if err := d.fetchMulti(ctx, url, partPath, total, threads); err != nil {
			return false, err
		}
		return true, os.Rename(partPath, finalPath)
	}

	for {
		state, resumeFrom := d.classify(partPath, total)
		switch state {
		case stateComplete:
			d.log.Info("file exists and matches current download length", "path", partPath)
			return false, os.Rename(partPath, finalPath)

		case stateNotStarted:
			if err := d.fetchFrom(ctx, url, partPath, 0, total, nil); err != nil {
				return false, err
			}
			return true, os.Rename(partPath, finalPath)

		case statePartialExists:
			verdict, err := d.resume(ctx, url, partPath, resumeFrom, total)
			if err != nil {
				return false, err
			}
			if verdict == stateResumeMismatch {
				// Self-healing: discard the suspect file and start over.
				d.log.Warn("resume verification failed, deleting partial file and redownloading", "path", partPath)
				if err := os.Remove(partPath); err != nil {
					return false, err
				}
				continue
			}
			return true, os.Rename(partPath, finalPath)

		case stateCorrupt:
			return false, domain.FormatNotAvailablef(
				"existing file is longer than the download; verify its integrity or remove it")
		}
	}
}

// classify inspects the partial file and decides how the download starts.
func (d *Downloader) classify(partPath string, total int64) (resumeState, int64) {
	info, err := os.Stat(partPath)
	if err != nil {
		return stateNotStarted, 0
	}
	size := info.Size()

	switch {
	case size == total:
		return stateComplete, size
	case size > total:
		if d.TagCheck != nil && d.TagCheck(partPath) {
			// Container metadata is only written after a complete download.
			d.log.Info("existing file has container metadata and should be complete", "path", partPath)
			return stateComplete, size
		}
		return stateCorrupt, size
	case size <= blockSize:
		// Not enough data for an overlap comparison; start over.
		return stateNotStarted, 0
	default:
		return statePartialExists, size
	}
}

// resume issues a ranged request overlapping the tail of the existing file
// and appends only when the overlap matches byte for byte. A mismatch is
// reported as stateResumeMismatch without error so the caller can delete
// the file and restart.
func (d *Downloader) resume(ctx context.Context, url, partPath string, size, total int64) (resumeState, error) {
	start := size - blockSize

	resp, err := d.rangeRequest(ctx, url, fmt.Sprintf("bytes=%d-", start))
	if err != nil {
		return stateResumeMismatch, err
	}
	defer resp.Body.Close()

	overlap := make([]byte, blockSize)
	if _, err := io.ReadFull(resp.Body, overlap); err != nil {
		return stateResumeMismatch, fmt.Errorf("reading verification block: %w", err)
	}

	existing := make([]byte, blockSize)
	f, err := os.Open(partPath)
	if err != nil {
		return stateResumeMismatch, err
	}
	if _, err := f.ReadAt(existing, start); err != nil {
		f.Close()
		return stateResumeMismatch, err
	}
	f.Close()

	if !bytes.Equal(overlap, existing) {
		return stateResumeMismatch, nil
	}

	d.log.Info("resuming", "path", partPath, "offset", size)
	if err := d.appendBody(ctx, resp.Body, partPath, size, total); err != nil {
		return stateResumeVerified, err
	}
	return stateResumeVerified, nil
}

// fetchFrom downloads bytes [offset, total) into partPath, creating or
// truncating the file first. body, when non-nil, is an already-open
// response positioned at offset.
func (d *Downloader) fetchFrom(ctx context.Context, url, partPath string, offset, total int64, body io.Reader) error {
	if body == nil {
		resp, err := d.rangeRequest(ctx, url, fmt.Sprintf("bytes=%d-", offset))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body = resp.Body
	}

	f, err := os.Create(partPath)
	if err != nil {
		return err
	}
	defer f.Close()

	progress := NewProgress(total)
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go progress.Monitor(monitorCtx)

	return d.copyBlocks(ctx, f, body, progress)
}

// appendBody continues an in-flight response onto the end of partPath.
func (d *Downloader) appendBody(ctx context.Context, body io.Reader, partPath string, offset, total int64) error {
	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	progress := NewProgress(total)
	progress.Add(offset)
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go progress.Monitor(monitorCtx)

	return d.copyBlocks(ctx, f, body, progress)
}

func (d *Downloader) copyBlocks(ctx context.Context, dst io.Writer, src io.Reader, progress *Progress) error {
	buf := make([]byte, blockSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			progress.Add(int64(n))
			metrics.BytesWritten.Add(float64(n))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *Downloader) rangeRequest(ctx context.Context, url, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", rangeHeader)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return resp, nil
}

// fetchMulti truncates the part file to its full length and downloads N
// disjoint contiguous ranges concurrently, the last range absorbing the
// remainder. Workers hold independent file handles and never overlap, so
// only the shared progress counter needs locking.
func (d *Downloader) fetchMulti(ctx context.Context, url, partPath string, total int64, threads int) error {
	f, err := os.Create(partPath)
	if err != nil {
		return err
	}
	if err := f.Truncate(total); err != nil {
		f.Close()
		return err
	}
	f.Close()

	part := (total + int64(threads) - 1) / int64(threads)

	progress := NewProgress(total)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, threads)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		start := part * int64(i)
		end := start + part
		if i == threads-1 {
			end = total
		}
		if start >= total {
			break
		}

		wg.Add(1)
		go func(start, end int64) {
			defer wg.Done()
			if err := d.fetchPart(ctx, url, partPath, start, end, progress); err != nil {
				select {
				case errs <- err:
					cancel()
				default:
				}
			}
		}(start, end)
	}

	monitorDone := make(chan struct{})
	go func() {
		progress.Monitor(ctx)
		close(monitorDone)
	}()

	wg.Wait()
	cancel()
	<-monitorDone

	select {
	case err := <-errs:
		return err
	default:
	}
	if progress.Current() < total {
		return fmt.Errorf("download ended short: %d of %d bytes", progress.Current(), total)
	}
	return nil
}

// fetchPart downloads [start, end) into its own file handle, seeking to its
// offset before writing. Ranges are disjoint; repartitioning must keep them
// that way.
func (d *Downloader) fetchPart(ctx context.Context, url, partPath string, start, end int64, progress *Progress) error {
	resp, err := d.rangeRequest(ctx, url, fmt.Sprintf("bytes=%d-%d", start, end-1))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(partPath, os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return err
	}

	return d.copyBlocks(ctx, f, io.LimitReader(resp.Body, end-start), progress)
}
