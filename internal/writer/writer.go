package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"

	"github.com/ligustah/shardfetch/pkg/sharded"
)

// Output formats.
const (
	FormatWebDataset = "webdataset"
	FormatFiles      = "files"
	FormatParquet    = "parquet"
)

// Compression for webdataset archives.
const (
	CompressionNone = ""
	CompressionZstd = "zstd"
)

// ErrClosed is returned when writing to a closed writer.
var ErrClosed = errors.New("writer: closed")

// Options configures the sample writers created by a Factory.
type Options struct {
	// Format is webdataset, files or parquet.
	// Default: webdataset
	Format string

	// Compression applies to webdataset archives ("" or "zstd").
	Compression string

	// Prefix is prepended to every object key.
	Prefix string

	// SaveCaption stores captions next to the images.
	SaveCaption bool

	// ShardDigits is the zero-padded width of shard names.
	// Default: 5
	ShardDigits int

	// Extension is the image file extension, e.g. "jpg".
	// Default: jpg
	Extension string
}

// Sample is one item handed to a writer.
type Sample struct {
	Key     string
	Data    []byte // nil when the sample failed
	Caption *string
	Record  *Record
}

// Factory creates per-shard writers bound to one output bucket.
type Factory struct {
	bucket *blob.Bucket
	opts   Options
}

// NewFactory validates opts and returns a Factory.
func NewFactory(bucket *blob.Bucket, opts Options) (*Factory, error) {
	if opts.Format == "" {
		opts.Format = FormatWebDataset
	}
	if opts.ShardDigits <= 0 {
		opts.ShardDigits = 5
	}
	if opts.Extension == "" {
		opts.Extension = "jpg"
	}
	switch opts.Format {
	case FormatWebDataset, FormatFiles, FormatParquet:
	default:
		return nil, fmt.Errorf("writer: unsupported format %q", opts.Format)
	}
	switch opts.Compression {
	case CompressionNone, CompressionZstd:
	default:
		return nil, fmt.Errorf("writer: unsupported compression %q", opts.Compression)
	}
	return &Factory{bucket: bucket, opts: opts}, nil
}

// ShardName returns the zero-padded name of a shard.
func (f *Factory) ShardName(shardID int) string {
	return fmt.Sprintf("%0*d", f.opts.ShardDigits, shardID)
}

// sink stores the sample files of one shard.
type sink interface {
	write(ctx context.Context, s Sample, meta []byte) error
	close() error
	abort()
}

// Writer persists the samples of one shard. Every sample's metadata goes
// to <shard>.parquet; successful samples are also stored in the format's
// sink. It is not safe for concurrent use.
type Writer struct {
	ctx      context.Context
	cancel   context.CancelFunc
	withData bool
	caption  bool

	bucket   *blob.Bucket
	metaKey  string
	metaBlob *blob.Writer
	meta     *sharded.TableWriter
	sink     sink
	closed   bool
}

// New creates the writer for shardID. columns describe the metadata
// records passed to Write.
func (f *Factory) New(ctx context.Context, shardID int, columns []sharded.Column) (*Writer, error) {
	ctx, cancel := context.WithCancel(ctx)
	name := f.opts.Prefix + f.ShardName(shardID)

	w := &Writer{
		ctx:      ctx,
		cancel:   cancel,
		withData: f.opts.Format == FormatParquet,
		caption:  f.opts.SaveCaption,
		bucket:   f.bucket,
		metaKey:  name + sharded.Extension,
	}

	if w.withData {
		columns = append(columns[:len(columns):len(columns)],
			sharded.Optional(f.opts.Extension, parquet.Leaf(parquet.ByteArrayType)))
	}

	var err error
	w.metaBlob, err = f.bucket.NewWriter(ctx, w.metaKey, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("writer: create metadata: %w", err)
	}
	w.meta, err = sharded.NewTableWriter(w.metaBlob, columns)
	if err != nil {
		w.abort()
		return nil, err
	}

	switch f.opts.Format {
	case FormatWebDataset:
		w.sink, err = newTarSink(ctx, f.bucket, name, f.opts.Extension, f.opts.Compression)
	case FormatFiles:
		w.sink = &filesSink{bucket: f.bucket, dir: name + "/", ext: f.opts.Extension}
	}
	if err != nil {
		w.abort()
		return nil, err
	}
	return w, nil
}

// Write stores one sample. The sample files go to the sink before the
// metadata row is appended, so a failed sink write leaves no record.
func (w *Writer) Write(s Sample) error {
	if w.closed {
		return ErrClosed
	}

	if w.sink != nil && s.Data != nil {
		if !w.caption {
			s.Caption = nil
		}
		meta, err := s.Record.MarshalJSON()
		if err != nil {
			return fmt.Errorf("writer: encode metadata for %s: %w", s.Key, err)
		}
		if err := w.sink.write(w.ctx, s, meta); err != nil {
			return fmt.Errorf("writer: sample %s: %w", s.Key, err)
		}
	}

	values := s.Record.Values()
	if w.withData {
		var data any
		if s.Data != nil {
			data = s.Data
		}
		values = append(values[:len(values):len(values)], data)
	}
	if err := w.meta.Write(values); err != nil {
		return fmt.Errorf("writer: metadata for %s: %w", s.Key, err)
	}
	return nil
}

// Close flushes and commits everything written so far. If any step
// fails, objects not yet committed are discarded.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	if w.sink != nil {
		if err := w.sink.close(); err != nil {
			w.abort()
			return fmt.Errorf("writer: close samples: %w", err)
		}
	}
	if err := w.meta.Close(); err != nil {
		w.abort()
		return err
	}
	if err := w.metaBlob.Close(); err != nil {
		w.cancel()
		return fmt.Errorf("writer: commit metadata: %w", err)
	}
	w.cancel()
	return nil
}

// Produces reports whether closing w would create or replace the shard
// table key in bucket. Only the metadata table shares the shard extension.
func (w *Writer) Produces(bucket *blob.Bucket, key string) bool {
	return bucket == w.bucket && key == w.metaKey
}

// Abort discards everything written so far. Nothing is committed.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.abort()
}

func (w *Writer) abort() {
	w.closed = true
	w.cancel()
	if w.sink != nil {
		w.sink.abort()
	}
	if w.metaBlob != nil {
		w.metaBlob.Close()
	}
}
