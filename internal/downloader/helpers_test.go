package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	fetchhttp "github.com/ligustah/shardfetch/internal/http"
	"github.com/ligustah/shardfetch/internal/resize"
	"github.com/ligustah/shardfetch/internal/writer"
	"github.com/ligustah/shardfetch/pkg/sharded"
)

// fakeFetcher serves bodies by URL; unknown URLs fail with ErrNotFound.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  int
}

func (f *fakeFetcher) FetchWithRetry(ctx context.Context, url string, retries int) (*fetchhttp.Payload, error) {
	f.mu.Lock()
	f.calls++
	body, ok := f.bodies[url]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("get %s: %w", url, fetchhttp.ErrNotFound)
	}
	return fetchhttp.NewPayload([]byte(body)), nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errBadImage = errors.New("bad image")

// fakeResizer returns the body, prefixed, as the processed
// image and rejects bodies equal to "bad". A body of "panic" panics.
type fakeResizer struct{}

func (fakeResizer) Resize(r io.ReadSeeker, bbox []float64) (resize.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return resize.Result{}, err
	}
	switch string(data) {
	case "bad":
		return resize.Result{}, errBadImage
	case "panic":
		panic("resizer exploded")
	}
	return resize.Result{
		Data:           append([]byte("resized:"), data...),
		Width:          len(bbox) + 1,
		Height:         2,
		OriginalWidth:  10,
		OriginalHeight: 20,
	}, nil
}

// recordingWriter keeps every sample in memory. writeErr fails every
// write; failKey fails the writes of one key.
type recordingWriter struct {
	samples  []writer.Sample
	failKey  string
	writeErr error
	closeErr error
	closed   bool
}

func (w *recordingWriter) Write(s writer.Sample) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	if s.Key == w.failKey {
		return errors.New("disk full")
	}
	w.samples = append(w.samples, s)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func (w *recordingWriter) byKey() map[string]writer.Sample {
	out := make(map[string]writer.Sample)
	for _, s := range w.samples {
		out[s.Key] = s
	}
	return out
}

func (w *recordingWriter) factory() WriterFactory {
	return func(ctx context.Context, shardID int, columns []sharded.Column) (SampleWriter, error) {
		return w, nil
	}
}

func openBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

// writeShard writes a shard whose rows have the given URLs, a caption per
// row and a bbox on row 0.
func writeShard(t *testing.T, bucket *blob.Bucket, key string, urls []string) {
	t.Helper()
	columns := []sharded.Column{
		{Name: "url", Node: parquet.String()},
		sharded.Optional("caption", parquet.String()),
		{Name: "bbox", Node: parquet.Repeated(parquet.Leaf(parquet.DoubleType))},
	}
	rows := make([][]any, len(urls))
	for i, u := range urls {
		var bbox any
		if i == 0 {
			bbox = []float64{0, 0, 0.5, 0.5}
		}
		rows[i] = []any{u, fmt.Sprintf("caption %d", i), bbox}
	}
	if err := sharded.WriteTable(context.Background(), bucket, key, columns, rows); err != nil {
		t.Fatalf("write shard: %v", err)
	}
}
