// Package stats counts sample outcomes per shard and aggregates them across a run.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gocloud.dev/blob"
)

// ShardStats summarizes one processed shard.
type ShardStats struct {
	ShardID          int              `json:"shard_id"`
	RunID            string           `json:"run_id,omitempty"`
	Count            int64            `json:"count"`
	Successes        int64            `json:"successes"`
	FailedToDownload int64            `json:"failed_to_download"`
	FailedToResize   int64            `json:"failed_to_resize"`
	FailedOther      int64            `json:"failed_other"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Duration         float64          `json:"duration"`
	StatusDict       map[string]int64 `json:"status_dict"`
}

// Processed returns the number of outcomes that were classified.
func (s ShardStats) Processed() int64 {
	return s.Successes + s.FailedToDownload + s.FailedToResize + s.FailedOther
}

// Sink receives the stats of every completed shard.
type Sink interface {
	WriteStats(ctx context.Context, s ShardStats) error
}

// BucketSink writes "<shard>_stats.json" objects to a bucket.
type BucketSink struct {
	bucket      *blob.Bucket
	prefix      string
	shardDigits int
}

// NewBucketSink creates a sink writing under prefix. shardDigits is the
// zero-padded width of the shard id in object names.
func NewBucketSink(bucket *blob.Bucket, prefix string, shardDigits int) *BucketSink {
	return &BucketSink{bucket: bucket, prefix: prefix, shardDigits: shardDigits}
}

// Key returns the object key for a shard's stats.
func (s *BucketSink) Key(shardID int) string {
	return fmt.Sprintf("%s%0*d_stats.json", s.prefix, s.shardDigits, shardID)
}

// WriteStats writes the stats as indented JSON.
func (s *BucketSink) WriteStats(ctx context.Context, st ShardStats) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("stats: marshal: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, s.Key(st.ShardID), data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("stats: write shard %d: %w", st.ShardID, err)
	}
	return nil
}

// Load reads every "*_stats.json" object under prefix.
func Load(ctx context.Context, bucket *blob.Bucket, prefix string) ([]ShardStats, error) {
	var out []ShardStats
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stats: list: %w", err)
		}
		if obj.IsDir || !strings.HasSuffix(obj.Key, "_stats.json") {
			continue
		}

		data, err := bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("stats: read %s: %w", obj.Key, err)
		}
		var st ShardStats
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("stats: unmarshal %s: %w", obj.Key, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Summary aggregates stats across shards.
type Summary struct {
	Shards           int
	Count            int64
	Successes        int64
	FailedToDownload int64
	FailedToResize   int64
	FailedOther      int64
	WallTime         time.Duration
	StatusDict       map[string]int64
}

// SuccessRate returns successes over count, or zero for an empty summary.
func (s Summary) SuccessRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Count)
}

// Summarize folds shard stats into one Summary. The status dictionary is
// re-capped with maxKeys.
func Summarize(all []ShardStats, maxKeys int) Summary {
	sum := Summary{Shards: len(all)}
	counter := NewCappedCounter(maxKeys)
	var first, last time.Time

	for _, st := range all {
		sum.Count += st.Count
		sum.Successes += st.Successes
		sum.FailedToDownload += st.FailedToDownload
		sum.FailedToResize += st.FailedToResize
		sum.FailedOther += st.FailedOther

		for _, kc := range MostCommon(st.StatusDict, 0) {
			counter.Add(kc.Key, kc.Count)
		}

		if first.IsZero() || st.StartTime.Before(first) {
			first = st.StartTime
		}
		if st.EndTime.After(last) {
			last = st.EndTime
		}
	}

	if !first.IsZero() {
		sum.WallTime = last.Sub(first)
	}
	sum.StatusDict = counter.Snapshot()
	return sum
}
