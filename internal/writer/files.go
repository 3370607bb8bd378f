package writer

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// filesSink stores every sample file as its own object under
// <shard>/.
type filesSink struct {
	bucket *blob.Bucket
	dir    string
	ext    string
}

func (s *filesSink) write(ctx context.Context, sample Sample, meta []byte) error {
	base := s.dir + sample.Key
	if err := s.bucket.WriteAll(ctx, base+"."+s.ext, sample.Data, nil); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if sample.Caption != nil {
		if err := s.bucket.WriteAll(ctx, base+".txt", []byte(*sample.Caption), nil); err != nil {
			return fmt.Errorf("write caption: %w", err)
		}
	}
	if err := s.bucket.WriteAll(ctx, base+".json", meta, nil); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *filesSink) close() error { return nil }

func (s *filesSink) abort() {}
