package hls

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"

	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/metrics"
	"github.com/ayanobu/nicofetch/internal/transport"
)

// ProgressSink receives one advancement per completed segment.
type ProgressSink interface {
	Advance(n int)
}

// NopSink discards progress updates.
type NopSink struct{}

func (NopSink) Advance(int) {}

// Fetcher downloads one variant's media playlist: key first, init segment,
// then the media segments through a bounded worker pool. Segments are
// decrypted with AES-128-CBC and appended to the destination strictly in
// manifest order even though fetches run concurrently.
type Fetcher struct {
	client *transport.Client
	log    *slog.Logger
}

func NewFetcher(client *transport.Client, log *slog.Logger) *Fetcher {
	return &Fetcher{client: client, log: log}
}

type segmentResult struct {
	data []byte
	err  error
}

// Download fetches the playlist at playlistURL and writes the decrypted
// stream to dest. On failure the partial output file is left on disk; the
// caller owns cleanup.
func (f *Fetcher) Download(ctx context.Context, playlistURL, dest string, workers int, sink ProgressSink) error {
	if workers <= 0 {
		return fmt.Errorf("segment worker count must be positive: %w", domain.ErrArgument)
	}
	if sink == nil {
		sink = NopSink{}
	}

	playlist, err := f.client.GetString(ctx, playlistURL)
	if err != nil {
		return fmt.Errorf("fetch media playlist: %w", err)
	}
	parsed, err := ParseMediaPlaylist(playlist)
	if err != nil {
		return err
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		return err
	}

	key, err := f.client.Get(ctx, resolveRef(base, parsed.KeyURI))
	if err != nil {
		return fmt.Errorf("fetch key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return domain.FormatNotAvailablef("delivery service returned an invalid key (%d bytes)", len(key))
	}
	if len(parsed.IV) != aes.BlockSize {
		return domain.FormatNotAvailablef("manifest IV has invalid length (%d bytes)", len(parsed.IV))
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	initSegment, err := f.client.Get(ctx, resolveRef(base, parsed.InitURI))
	if err != nil {
		return fmt.Errorf("fetch init segment: %w", err)
	}
	if _, err := out.Write(initSegment); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	segments := parsed.Segments
	jobs := make(chan int)

	// One slot per segment so workers never block on a consumer that has
	// already bailed out, and the consumer can drain in submission order.
	results := make([]chan segmentResult, len(segments))
	for i := range results {
		results[i] = make(chan segmentResult, 1)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				data, err := f.fetchSegment(ctx, resolveRef(base, segments[idx]), block, parsed.IV)
				results[idx] <- segmentResult{data: data, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range segments {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	for i := range segments {
		var res segmentResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-results[i]:
		}
		if res.err != nil {
			return fmt.Errorf("segment %d/%d: %w", i+1, len(segments), res.err)
		}
		if _, err := out.Write(res.data); err != nil {
			return err
		}
		sink.Advance(1)
		metrics.SegmentsFetched.Inc()
		metrics.BytesWritten.Add(float64(len(res.data)))
	}

	return nil
}

func (f *Fetcher) fetchSegment(ctx context.Context, segmentURL string, block cipher.Block, iv []byte) ([]byte, error) {
	data, err := f.client.Get(ctx, segmentURL)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, domain.FormatNotAvailablef("segment is not block-aligned (%d bytes)", len(data))
	}

	cipher.NewCBCDecrypter(block, iv).CryptBlocks(data, data)
	return pkcs7Unpad(data, aes.BlockSize)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, domain.FormatNotAvailablef("segment has invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, domain.FormatNotAvailablef("segment has invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
