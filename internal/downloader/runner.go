package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/shardfetch/internal/hashing"
	"github.com/ligustah/shardfetch/internal/logging"
	"github.com/ligustah/shardfetch/internal/metrics"
	"github.com/ligustah/shardfetch/internal/progress"
	"github.com/ligustah/shardfetch/internal/stats"
	"github.com/ligustah/shardfetch/internal/writer"
	"github.com/ligustah/shardfetch/pkg/sharded"
)

// Shard errors.
var (
	// ErrColumnConflict is returned when an input column clashes with an
	// output column.
	ErrColumnConflict = errors.New("downloader: input column conflicts with output column")

	// ErrSourceIsOutput is returned when the shard writer would overwrite
	// the shard's own source object.
	ErrSourceIsOutput = errors.New("downloader: shard source would be overwritten by its output")

	// ErrUnwrittenRecords is returned when the writer lost records of a
	// shard. The source is kept so the shard can be run again.
	ErrUnwrittenRecords = errors.New("downloader: sample records were not written")
)

// Options configures the shard runner.
type Options struct {
	// ThreadCount is the number of concurrent fetches per shard.
	// Default: 256
	ThreadCount int

	// Retries is the number of extra attempts per URL.
	Retries int

	// SamplesPerShard is the maximum number of rows in a shard; it sets the
	// per-shard width of sample keys.
	// Default: 10000
	SamplesPerShard int

	// ShardCountDigits is the width of the shard id part of sample keys.
	// Default: 5
	ShardCountDigits int

	// URLColumn names the column holding the URLs.
	// Default: url
	URLColumn string

	// CaptionColumn names the optional caption column.
	// Default: caption
	CaptionColumn string

	// BBoxColumn names the bounding box column. Empty disables cropping.
	BBoxColumn string

	// ComputeHash names the hash algorithm. Empty disables hashing.
	ComputeHash string

	// ExtractExif adds an exif column.
	ExtractExif bool

	// KeepSource keeps shard files after processing.
	KeepSource bool

	// MaxStatusKeys bounds the distinct keys of the status counter.
	// Default: 1000
	MaxStatusKeys int

	// RunID is attached to logs and stats.
	RunID string

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

func (o *Options) applyDefaults() {
	if o.ThreadCount <= 0 {
		o.ThreadCount = 256
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.SamplesPerShard <= 0 {
		o.SamplesPerShard = 10000
	}
	if o.ShardCountDigits <= 0 {
		o.ShardCountDigits = 5
	}
	if o.URLColumn == "" {
		o.URLColumn = "url"
	}
	if o.CaptionColumn == "" {
		o.CaptionColumn = "caption"
	}
	if o.MaxStatusKeys <= 0 {
		o.MaxStatusKeys = stats.DefaultMaxKeys
	}
}

// Result reports the outcome of one shard.
type Result struct {
	ShardID int
	Key     string
	Stats   *stats.ShardStats
	Err     error // *ShardError when the shard failed
}

// OK reports whether the shard completed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Runner processes shards read from an input bucket.
type Runner struct {
	input     *blob.Bucket
	fetcher   Fetcher
	resizer   Resizer
	newWriter WriterFactory
	sink      stats.Sink
	hasher    *hashing.Hasher
	codec     KeyCodec
	opts      Options
}

// NewRunner creates a runner. sink may be nil.
func NewRunner(input *blob.Bucket, fetcher Fetcher, resizer Resizer, newWriter WriterFactory, sink stats.Sink, opts Options) (*Runner, error) {
	opts.applyDefaults()

	r := &Runner{
		input:     input,
		fetcher:   fetcher,
		resizer:   resizer,
		newWriter: newWriter,
		sink:      sink,
		codec:     NewKeyCodec(opts.SamplesPerShard, opts.ShardCountDigits),
		opts:      opts,
	}
	if name := hashing.Normalize(opts.ComputeHash); name != "" {
		h, err := hashing.NewHasher(name)
		if err != nil {
			return nil, err
		}
		r.hasher = h
	}
	return r, nil
}

// outputColumns returns the input columns followed by the columns the
// processor fills in.
func (r *Runner) outputColumns(in []sharded.Column) ([]sharded.Column, error) {
	str := parquet.String()
	i32 := parquet.Int(32)

	extra := []sharded.Column{
		sharded.Optional(ColumnKey, str),
		sharded.Optional(ColumnStatus, str),
		sharded.Optional(ColumnErrorMessage, str),
		sharded.Optional(ColumnWidth, i32),
		sharded.Optional(ColumnHeight, i32),
		sharded.Optional(ColumnOriginalWidth, i32),
		sharded.Optional(ColumnOriginalHeight, i32),
	}
	if r.opts.ExtractExif {
		extra = append(extra, sharded.Optional(ColumnExif, str))
	}
	if r.hasher != nil {
		extra = append(extra, sharded.Optional(r.hasher.Name(), str))
	}

	seen := make(map[string]bool, len(in))
	for _, c := range in {
		seen[c.Name] = true
	}
	for _, c := range extra {
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: %s", ErrColumnConflict, c.Name)
		}
	}

	out := make([]sharded.Column, 0, len(in)+len(extra))
	out = append(out, in...)
	return append(out, extra...), nil
}

// RunShard downloads every row of shard, writes the samples and stats, and
// removes the shard source. The source is only removed after the writer
// closed successfully with a record for every row and ctx is still live.
func (r *Runner) RunShard(ctx context.Context, shard sharded.Shard) (*stats.ShardStats, error) {
	log := logging.ShardLogger(r.opts.RunID, shard.ID, shard.Key)
	start := time.Now()

	table, err := sharded.Open(ctx, r.input, shard.Key)
	if err != nil {
		return nil, err
	}
	required := []string{r.opts.URLColumn}
	if r.opts.BBoxColumn != "" {
		required = append(required, r.opts.BBoxColumn)
	}
	if err := sharded.RequireColumns(table, required...); err != nil {
		return nil, err
	}
	if err := r.codec.Validate(shard.ID, table.Len()); err != nil {
		return nil, err
	}

	columns, err := r.outputColumns(table.Fields())
	if err != nil {
		return nil, err
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}

	urlIdx := table.ColumnIndex(r.opts.URLColumn)
	bboxIdx := -1
	if r.opts.BBoxColumn != "" {
		bboxIdx = table.ColumnIndex(r.opts.BBoxColumn)
	}

	rows := table.Rows()
	jobs := make([]Job, len(rows))
	for i, row := range rows {
		url, _ := row[urlIdx].(string)
		jobs[i] = Job{Key: i, URL: url}
	}

	w, err := r.newWriter(ctx, shard.ID, columns)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}
	if g, ok := w.(OutputGuard); ok && g.Produces(r.input, shard.Key) {
		g.Abort()
		return nil, fmt.Errorf("%w: %s", ErrSourceIsOutput, shard.Key)
	}

	proc := &Processor{
		shardID:     shard.ID,
		rows:        rows,
		captionIdx:  table.ColumnIndex(r.opts.CaptionColumn),
		bboxIdx:     bboxIdx,
		layout:      writer.NewLayout(names),
		codec:       r.codec,
		resizer:     r.resizer,
		writer:      w,
		hasher:      r.hasher,
		extractExif: r.opts.ExtractExif,
		status:      stats.NewCappedCounter(r.opts.MaxStatusKeys),
		log:         log,
		metrics:     r.opts.Metrics,
		progress:    r.opts.Progress,
	}

	log.Info("shard started", "rows", len(rows))
	NewCoordinator(r.fetcher, r.opts.ThreadCount, r.opts.Retries, r.opts.Metrics).Run(ctx, jobs, proc.Process)

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	end := time.Now()
	st := proc.Stats()
	st.RunID = r.opts.RunID
	st.Count = int64(len(rows))
	st.StartTime = start
	st.EndTime = end
	st.Duration = end.Sub(start).Seconds()

	if r.sink != nil {
		if err := r.sink.WriteStats(ctx, st); err != nil {
			return &st, err
		}
	}

	if err := ctx.Err(); err != nil {
		return &st, err
	}
	if n := proc.Unwritten(); n > 0 {
		return &st, fmt.Errorf("%w: %d of %d rows", ErrUnwrittenRecords, n, len(rows))
	}
	if !r.opts.KeepSource {
		if err := sharded.Remove(ctx, r.input, shard.Key); err != nil {
			return &st, err
		}
	}

	log.Info("shard finished",
		"count", st.Count,
		"successes", st.Successes,
		"failed_to_download", st.FailedToDownload,
		"failed_to_resize", st.FailedToResize,
		"failed_other", st.FailedOther,
		"duration", st.Duration,
	)
	return &st, nil
}

// Run processes one shard and never fails: errors and panics are turned
// into a failed Result for that shard.
func (r *Runner) Run(ctx context.Context, shard sharded.Shard) (res Result) {
	res = Result{ShardID: shard.ID, Key: shard.Key}
	start := time.Now()

	if r.opts.Progress != nil {
		r.opts.Progress.ShardStarted()
	}
	defer func() {
		if p := recover(); p != nil {
			res.Err = &ShardError{ShardID: shard.ID, Err: fmt.Errorf("panic: %v", p)}
		}
		if res.Err != nil {
			slog.Error("shard failed", "shard_id", shard.ID, "source", shard.Key, "error", res.Err)
		}
		r.opts.Metrics.ObserveShard(res.OK(), time.Since(start).Seconds())
		if r.opts.Progress != nil {
			r.opts.Progress.ShardDone(res.OK())
		}
	}()

	st, err := r.RunShard(ctx, shard)
	res.Stats = st
	if err != nil {
		res.Err = &ShardError{ShardID: shard.ID, Err: err}
	}
	return res
}

// RunAll processes shards with at most parallelism running at once. A
// failed shard does not stop the others. Results are in input order.
func (r *Runner) RunAll(ctx context.Context, shards []sharded.Shard, parallelism int) []Result {
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]Result, len(shards))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, shard := range shards {
		g.Go(func() error {
			results[i] = r.Run(ctx, shard)
			return nil
		})
	}
	g.Wait()
	return results
}
