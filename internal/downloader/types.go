package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"

	fetchhttp "github.com/ligustah/shardfetch/internal/http"
	"github.com/ligustah/shardfetch/internal/resize"
	"github.com/ligustah/shardfetch/internal/writer"
	"github.com/ligustah/shardfetch/pkg/sharded"
)

// Sample statuses.
const (
	StatusSuccess          = "success"
	StatusFailedToDownload = "failed_to_download"
	StatusFailedToResize   = "failed_to_resize"
	StatusFailedOther      = "failed_other"
)

// Output columns appended to every shard's schema.
const (
	ColumnKey            = "key"
	ColumnStatus         = "status"
	ColumnErrorMessage   = "error_message"
	ColumnWidth          = "width"
	ColumnHeight         = "height"
	ColumnOriginalWidth  = "original_width"
	ColumnOriginalHeight = "original_height"
	ColumnExif           = "exif"
)

var errNoPayload = errors.New("downloader: fetch returned neither payload nor error")

// Fetcher retrieves one resource with retries.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, url string, retries int) (*fetchhttp.Payload, error)
}

// Resizer transforms a downloaded image. bbox is nil when the row has no
// bounding box.
type Resizer interface {
	Resize(r io.ReadSeeker, bbox []float64) (resize.Result, error)
}

// SampleWriter persists samples of one shard. It is only ever called from
// a single goroutine.
type SampleWriter interface {
	Write(s writer.Sample) error
	Close() error
}

// WriterFactory creates the sample writer for a shard.
type WriterFactory func(ctx context.Context, shardID int, columns []sharded.Column) (SampleWriter, error)

// OutputGuard is implemented by sample writers that know the objects they
// create. A writer that would produce the shard's source is aborted
// before any fetch starts.
type OutputGuard interface {
	Produces(bucket *blob.Bucket, key string) bool
	Abort()
}

// Job is one row to fetch.
type Job struct {
	Key int // local key
	URL string
}

// Outcome is the result of fetching one job. Exactly one of Payload and
// Err is set on outcomes produced by the gate.
type Outcome struct {
	Key     int
	Payload *fetchhttp.Payload
	Err     error

	sentinel bool
}

// endOfStream returns the outcome signalling that no more results follow.
func endOfStream() Outcome {
	return Outcome{Key: -1, sentinel: true}
}

func (o Outcome) isEndOfStream() bool {
	return o.sentinel
}

// ShardError reports a shard that could not be processed.
type ShardError struct {
	ShardID int
	Err     error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %d: %v", e.ShardID, e.Err)
}

func (e *ShardError) Unwrap() error {
	return e.Err
}
