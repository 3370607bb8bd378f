package writer

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/ligustah/shardfetch/pkg/sharded"
)

func testColumns() []sharded.Column {
	return []sharded.Column{
		{Name: "url", Node: parquet.String()},
		{Name: "key", Node: parquet.String()},
		{Name: "status", Node: parquet.String()},
		sharded.Optional("error_message", parquet.String()),
	}
}

func writeSamples(t *testing.T, w *Writer) {
	t.Helper()
	layout := NewLayout([]string{"url", "key", "status", "error_message"})

	ok := layout.NewRecord()
	ok.Set("url", "http://a")
	ok.Set("key", "000010000")
	ok.Set("status", "success")
	caption := "a cat"
	if err := w.Write(Sample{Key: "000010000", Data: []byte("jpegdata"), Caption: &caption, Record: ok}); err != nil {
		t.Fatalf("Write success: %v", err)
	}

	failed := layout.NewRecord()
	failed.Set("url", "http://b")
	failed.Set("key", "000010001")
	failed.Set("status", "failed_to_download")
	failed.Set("error_message", "http: resource not found")
	if err := w.Write(Sample{Key: "000010001", Record: failed}); err != nil {
		t.Fatalf("Write failure: %v", err)
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

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	files := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		data, _ := io.ReadAll(tr)
		files[hdr.Name] = string(data)
	}
	return files
}

func TestWebDatasetZstd(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	f, err := NewFactory(bucket, Options{
		Format:      FormatWebDataset,
		Compression: CompressionZstd,
		Prefix:      "out/",
		SaveCaption: true,
	})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	w, err := f.New(ctx, 1, testColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeSamples(t, w)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := bucket.ReadAll(ctx, "out/00001.tar.zst")
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	files := readTar(t, dec)
	if len(files) != 3 {
		t.Errorf("expected 3 files for the single success, got %v", files)
	}
	if files["000010000.jpg"] != "jpegdata" {
		t.Errorf("unexpected image %q", files["000010000.jpg"])
	}
	if files["000010000.txt"] != "a cat" {
		t.Errorf("unexpected caption %q", files["000010000.txt"])
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(files["000010000.json"]), &meta); err != nil {
		t.Fatalf("metadata json: %v", err)
	}
	if meta["status"] != "success" || meta["error_message"] != nil {
		t.Errorf("unexpected metadata %v", meta)
	}

	table, err := sharded.Open(ctx, bucket, "out/00001.parquet")
	if err != nil {
		t.Fatalf("open metadata: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("expected a metadata row per sample, got %d", table.Len())
	}
}

func TestFilesWithoutCaption(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	f, _ := NewFactory(bucket, Options{Format: FormatFiles, ShardDigits: 3, Extension: "png"})
	w, err := f.New(ctx, 7, testColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeSamples(t, w)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for key, want := range map[string]bool{
		"007/000010000.png":  true,
		"007/000010000.json": true,
		"007/000010000.txt":  false,
		"007/000010001.json": false,
		"007.parquet":        true,
	} {
		exists, _ := bucket.Exists(ctx, key)
		if exists != want {
			t.Errorf("%s: exists=%v, want %v", key, exists, want)
		}
	}
}

func TestParquetFormat(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	f, _ := NewFactory(bucket, Options{Format: FormatParquet})
	w, err := f.New(ctx, 0, testColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeSamples(t, w)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	table, err := sharded.Open(ctx, bucket, "00000.parquet")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	img := table.ColumnIndex("jpg")
	status := table.ColumnIndex("status")
	if img < 0 {
		t.Fatalf("expected image column, have %v", table.Names())
	}
	for _, row := range table.Rows() {
		if row[status] == "success" && row[img] != "jpegdata" {
			t.Errorf("expected image bytes, got %v", row[img])
		}
		if row[status] != "success" && row[img] != nil {
			t.Errorf("expected null image for failure, got %v", row[img])
		}
	}
}

type failingSink struct{ err error }

func (s failingSink) write(context.Context, Sample, []byte) error { return s.err }
func (failingSink) close() error                                { return nil }
func (failingSink) abort()                                      {}

func TestSinkFailureLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	f, _ := NewFactory(bucket, Options{Format: FormatFiles})
	w, err := f.New(ctx, 1, testColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	diskFull := errors.New("disk full")
	w.sink = failingSink{err: diskFull}

	layout := NewLayout([]string{"url", "key", "status", "error_message"})
	rec := layout.NewRecord()
	rec.Set("url", "http://a")
	rec.Set("key", "000010000")
	rec.Set("status", "success")
	if err := w.Write(Sample{Key: "000010000", Data: []byte("jpegdata"), Record: rec}); !errors.Is(err, diskFull) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	table, err := sharded.Open(ctx, bucket, "00001.parquet")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("expected no metadata rows after a failed sink write, got %d", table.Len())
	}
}

func TestWriteAfterClose(t *testing.T) {
	bucket := openBucket(t)
	f, _ := NewFactory(bucket, Options{})
	w, _ := f.New(context.Background(), 0, testColumns())
	w.Close()

	if err := w.Close(); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := w.Write(Sample{}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestProducesAndAbort(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	other := openBucket(t)
	f, _ := NewFactory(bucket, Options{Prefix: "out/", Format: FormatFiles})
	w, err := f.New(ctx, 7, testColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		bucket *blob.Bucket
		key    string
		want   bool
	}{
		{bucket, "out/00007.parquet", true},
		{other, "out/00007.parquet", false},
		{bucket, "out/00008.parquet", false},
		{bucket, "00007.parquet", false},
	}
	for _, tt := range tests {
		if got := w.Produces(tt.bucket, tt.key); got != tt.want {
			t.Errorf("Produces(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}

	writeSamples(t, w)
	w.Abort()
	w.Abort()
	if err := w.Close(); err != ErrClosed {
		t.Errorf("expected ErrClosed after Abort, got %v", err)
	}
	if exists, _ := bucket.Exists(ctx, "out/00007.parquet"); exists {
		t.Error("aborted writer must not commit metadata")
	}
}

func TestNewFactoryValidates(t *testing.T) {
	bucket := openBucket(t)
	if _, err := NewFactory(bucket, Options{Format: "tfrecord"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewFactory(bucket, Options{Compression: "gzip"}); err == nil {
		t.Error("expected error for unknown compression")
	}
}

func TestRecordJSONOrder(t *testing.T) {
	layout := NewLayout([]string{"b", "a"})
	r := layout.NewRecord()
	r.Set("a", 1)
	if r.Set("missing", 2) {
		t.Error("expected Set on unknown column to report false")
	}
	data, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != `{"b":null,"a":1}` {
		t.Errorf("unexpected json %s", data)
	}
}
