package writer

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
)

// tarSink writes samples to <shard>.tar, or <shard>.tar.zst when
// compressed. Files of one sample are adjacent in the archive.
type tarSink struct {
	blob    *blob.Writer
	zstd    *zstd.Encoder
	tar     *tar.Writer
	ext     string
	modTime time.Time
}

func newTarSink(ctx context.Context, bucket *blob.Bucket, name, ext, compression string) (*tarSink, error) {
	key := name + ".tar"
	if compression == CompressionZstd {
		key += ".zst"
	}

	bw, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}

	s := &tarSink{blob: bw, ext: ext, modTime: time.Now().UTC().Truncate(time.Second)}
	var out io.Writer = bw
	if compression == CompressionZstd {
		s.zstd, err = zstd.NewWriter(bw)
		if err != nil {
			bw.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		out = s.zstd
	}
	s.tar = tar.NewWriter(out)
	return s, nil
}

func (s *tarSink) write(_ context.Context, sample Sample, meta []byte) error {
	if err := s.add(sample.Key+"."+s.ext, sample.Data); err != nil {
		return err
	}
	if sample.Caption != nil {
		if err := s.add(sample.Key+".txt", []byte(*sample.Caption)); err != nil {
			return err
		}
	}
	return s.add(sample.Key+".json", meta)
}

func (s *tarSink) add(name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: s.modTime,
		Format:  tar.FormatPAX,
	}
	if err := s.tar.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header %s: %w", name, err)
	}
	if _, err := s.tar.Write(data); err != nil {
		return fmt.Errorf("tar write %s: %w", name, err)
	}
	return nil
}

func (s *tarSink) close() error {
	if err := s.tar.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if s.zstd != nil {
		if err := s.zstd.Close(); err != nil {
			return fmt.Errorf("close zstd: %w", err)
		}
	}
	if err := s.blob.Close(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// abort relies on the caller cancelling the writer context first.
func (s *tarSink) abort() {
	if s.zstd != nil {
		s.zstd.Close()
	}
	s.blob.Close()
}
