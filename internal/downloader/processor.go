package downloader

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ligustah/shardfetch/internal/exif"
	"github.com/ligustah/shardfetch/internal/hashing"
	"github.com/ligustah/shardfetch/internal/metrics"
	"github.com/ligustah/shardfetch/internal/progress"
	"github.com/ligustah/shardfetch/internal/resize"
	"github.com/ligustah/shardfetch/internal/stats"
	"github.com/ligustah/shardfetch/internal/writer"
)

// Processor classifies outcomes and hands them to the sample writer.
// Its counters are owned by the consumer goroutine and need no locking.
type Processor struct {
	shardID    int
	rows       [][]any
	captionIdx int
	bboxIdx    int
	layout     *writer.Layout
	codec      KeyCodec

	resizer     Resizer
	writer      SampleWriter
	hasher      *hashing.Hasher
	extractExif bool

	successes        int64
	failedToDownload int64
	failedToResize   int64
	failedOther      int64
	unwritten        int64
	status           *stats.CappedCounter

	log      *slog.Logger
	metrics  *metrics.Metrics
	progress *progress.Reporter
}

// Process handles one outcome. It never panics; unexpected failures are
// counted as failed_other.
func (p *Processor) Process(o Outcome) {
	if o.Payload != nil {
		defer o.Payload.Close()
	}

	key, err := p.codec.Encode(o.Key, p.shardID)
	if err != nil {
		p.fail(fmt.Sprint(o.Key), o.Key, err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.fail(key, o.Key, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := p.process(key, o); err != nil {
		p.fail(key, o.Key, err)
	}
}

// writeError marks a failure of the sample writer itself.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

func (p *Processor) process(key string, o Outcome) error {
	if o.Key < 0 || o.Key >= len(p.rows) {
		return fmt.Errorf("no row for local key %d", o.Key)
	}
	row := p.rows[o.Key]

	rec := p.layout.NewRecord()
	for i, v := range row {
		rec.SetAt(i, v)
	}
	rec.Set(ColumnKey, key)

	sample := writer.Sample{Key: key, Caption: p.caption(row), Record: rec}

	if o.Err != nil {
		return p.finish(sample, StatusFailedToDownload, o.Err.Error())
	}

	bbox, err := p.bbox(row)
	if err != nil {
		return p.finish(sample, StatusFailedToResize, err.Error())
	}
	res, err := p.resizer.Resize(o.Payload.Reader(), bbox)
	if err != nil {
		return p.finish(sample, StatusFailedToResize, err.Error())
	}

	original := o.Payload.Bytes()
	if p.extractExif {
		if summary, err := exif.Summary(bytes.NewReader(original)); err == nil {
			rec.Set(ColumnExif, summary)
		}
	}
	if p.hasher != nil {
		rec.Set(p.hasher.Name(), p.hasher.Sum(original))
	}
	rec.Set(ColumnWidth, res.Width)
	rec.Set(ColumnHeight, res.Height)
	rec.Set(ColumnOriginalWidth, res.OriginalWidth)
	rec.Set(ColumnOriginalHeight, res.OriginalHeight)

	sample.Data = res.Data
	return p.finish(sample, StatusSuccess, StatusSuccess)
}

// finish writes the sample and counts it. label is the Status Counter key:
// the status for successes, the error text for failures.
func (p *Processor) finish(sample writer.Sample, status, label string) error {
	sample.Record.Set(ColumnStatus, status)
	if status != StatusSuccess {
		sample.Record.Set(ColumnErrorMessage, label)
		p.log.Debug("sample failed", "key", sample.Key, "status", status, "error", label)
	}

	if err := p.writer.Write(sample); err != nil {
		return &writeError{err: err}
	}

	switch status {
	case StatusSuccess:
		p.successes++
	case StatusFailedToDownload:
		p.failedToDownload++
	case StatusFailedToResize:
		p.failedToResize++
	}
	p.count(status, label)
	return nil
}

// fail counts a failed_other sample. Unless the writer itself failed, a
// failed_other record is written for the row; rows left without a record
// are counted as unwritten.
func (p *Processor) fail(key string, localKey int, err error) {
	p.log.Warn("sample processing failed", "key", key, "error", err)
	p.failedOther++

	var we *writeError
	if errors.As(err, &we) || !p.record(key, localKey, err) {
		p.unwritten++
	}
	p.count(StatusFailedOther, err.Error())
}

// record writes a failed_other record for the row at localKey. It reports
// false if the writer failed or panicked.
func (p *Processor) record(key string, localKey int, cause error) (ok bool) {
	if localKey < 0 || localKey >= len(p.rows) {
		// No such row, so no record is owed.
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	row := p.rows[localKey]
	rec := p.layout.NewRecord()
	for i, v := range row {
		rec.SetAt(i, v)
	}
	rec.Set(ColumnKey, key)
	rec.Set(ColumnStatus, StatusFailedOther)
	rec.Set(ColumnErrorMessage, cause.Error())

	if err := p.writer.Write(writer.Sample{Key: key, Caption: p.caption(row), Record: rec}); err != nil {
		p.log.Warn("failed to record sample failure", "key", key, "error", err)
		return false
	}
	return true
}

func (p *Processor) count(status, label string) {
	p.status.Increment(label)
	p.metrics.IncSamples(status)
	if p.progress != nil {
		p.progress.SampleDone(status == StatusSuccess)
	}
}

func (p *Processor) caption(row []any) *string {
	if p.captionIdx < 0 {
		return nil
	}
	s, ok := row[p.captionIdx].(string)
	if !ok {
		return nil
	}
	return &s
}

func (p *Processor) bbox(row []any) ([]float64, error) {
	if p.bboxIdx < 0 || row[p.bboxIdx] == nil {
		return nil, nil
	}

	switch v := row[p.bboxIdx].(type) {
	case []float64:
		return v, nil
	case []any:
		out := make([]float64, len(v))
		for i, item := range v {
			switch f := item.(type) {
			case float64:
				out[i] = f
			case float32:
				out[i] = float64(f)
			default:
				return nil, fmt.Errorf("%w: element %v", resize.ErrInvalidBBox, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v", resize.ErrInvalidBBox, v)
	}
}

// Unwritten returns the number of rows the writer has no record of.
func (p *Processor) Unwritten() int64 {
	return p.unwritten
}

// Stats returns the counters accumulated so far.
func (p *Processor) Stats() stats.ShardStats {
	return stats.ShardStats{
		ShardID:          p.shardID,
		Successes:        p.successes,
		FailedToDownload: p.failedToDownload,
		FailedToResize:   p.failedToResize,
		FailedOther:      p.failedOther,
		StatusDict:       p.status.Snapshot(),
	}
}
