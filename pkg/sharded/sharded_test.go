package sharded

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

func testColumns() []Column {
	return []Column{
		{Name: "url", Node: parquet.String()},
		Optional("caption", parquet.String()),
		{Name: "bbox", Node: parquet.Repeated(parquet.Leaf(parquet.DoubleType))},
		Optional("score", parquet.Int(64)),
	}
}

func testRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		var caption any
		if i%2 == 0 {
			caption = fmt.Sprintf("caption %d", i)
		}
		var bbox any
		if i == 1 {
			bbox = []float64{0.1, 0.2, 0.3, 0.4}
		}
		rows[i] = []any{fmt.Sprintf("http://example.com/%d.jpg", i), caption, bbox, int64(i)}
	}
	return rows
}

func TestWriteAndOpen(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	if err := WriteTable(ctx, bucket, "in/00000.parquet", testColumns(), testRows(5)); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	table, err := Open(ctx, bucket, "in/00000.parquet")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if table.Len() != 5 {
		t.Fatalf("expected 5 rows, got %d", table.Len())
	}

	urlIdx := table.ColumnIndex("url")
	captionIdx := table.ColumnIndex("caption")
	bboxIdx := table.ColumnIndex("bbox")
	scoreIdx := table.ColumnIndex("score")
	if urlIdx < 0 || captionIdx < 0 || bboxIdx < 0 || scoreIdx < 0 {
		t.Fatalf("missing columns in %v", table.Names())
	}
	if table.ColumnIndex("nope") != -1 {
		t.Error("expected -1 for unknown column")
	}

	rows := table.Rows()
	for i, row := range rows {
		if want := fmt.Sprintf("http://example.com/%d.jpg", i); row[urlIdx] != want {
			t.Errorf("row %d: url = %v, want %s", i, row[urlIdx], want)
		}
		if row[scoreIdx] != int64(i) {
			t.Errorf("row %d: score = %v (%T)", i, row[scoreIdx], row[scoreIdx])
		}
		if i%2 == 0 && row[captionIdx] != fmt.Sprintf("caption %d", i) {
			t.Errorf("row %d: caption = %v", i, row[captionIdx])
		}
		if i%2 == 1 && row[captionIdx] != nil {
			t.Errorf("row %d: expected null caption, got %v", i, row[captionIdx])
		}
	}

	bbox, ok := rows[1][bboxIdx].([]any)
	if !ok || len(bbox) != 4 || bbox[0] != 0.1 || bbox[3] != 0.4 {
		t.Errorf("unexpected bbox %v", rows[1][bboxIdx])
	}
	if rows[0][bboxIdx] != nil {
		t.Errorf("expected nil bbox for row 0, got %v", rows[0][bboxIdx])
	}
}

func TestOpenMissing(t *testing.T) {
	ctx := context.Background()
	bucket, _ := blob.OpenBucket(ctx, "mem://")
	defer bucket.Close()

	_, err := Open(ctx, bucket, "nope.parquet")
	if gcerrors.Code(err) != gcerrors.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestOpenInvalid(t *testing.T) {
	ctx := context.Background()
	bucket, _ := blob.OpenBucket(ctx, "mem://")
	defer bucket.Close()

	bucket.WriteAll(ctx, "bad.parquet", []byte("not parquet"), nil)
	if _, err := Open(ctx, bucket, "bad.parquet"); err == nil {
		t.Error("expected error for invalid parquet")
	}
}

func TestWriteRowWidth(t *testing.T) {
	ctx := context.Background()
	bucket, _ := blob.OpenBucket(ctx, "mem://")
	defer bucket.Close()

	err := WriteTable(ctx, bucket, "x.parquet", testColumns(), [][]any{{"only url"}})
	if err == nil {
		t.Error("expected error for short row")
	}
	if exists, _ := bucket.Exists(ctx, "x.parquet"); exists {
		t.Error("expected no object for failed write")
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	bucket, _ := blob.OpenBucket(ctx, "mem://")
	defer bucket.Close()

	for _, key := range []string{"in/00002.parquet", "in/00000.parquet", "in/00010.parquet", "in/00002_stats.json", "other/00001.parquet"} {
		bucket.WriteAll(ctx, key, []byte("x"), nil)
	}

	shards, err := List(ctx, bucket, "in/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Shard{{0, "in/00000.parquet"}, {2, "in/00002.parquet"}, {10, "in/00010.parquet"}}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %v", len(want), shards)
	}
	for i := range want {
		if shards[i] != want[i] {
			t.Errorf("shard %d = %v, want %v", i, shards[i], want[i])
		}
	}
}

func TestListNonNumeric(t *testing.T) {
	ctx := context.Background()
	bucket, _ := blob.OpenBucket(ctx, "mem://")
	defer bucket.Close()

	for _, key := range []string{"b.parquet", "a.parquet", "00007.parquet"} {
		bucket.WriteAll(ctx, key, []byte("x"), nil)
	}

	shards, err := List(ctx, bucket, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i, s := range shards {
		if s.ID != i {
			t.Errorf("expected positional id %d, got %d", i, s.ID)
		}
	}
	if shards[0].Key != "00007.parquet" || shards[2].Key != "b.parquet" {
		t.Errorf("unexpected order %v", shards)
	}
}

func TestNestedColumnRejected(t *testing.T) {
	ctx := context.Background()
	bucket, _ := blob.OpenBucket(ctx, "mem://")
	defer bucket.Close()

	cols := []Column{{Name: "meta", Node: parquet.Group{
		"a": parquet.String(),
		"b": parquet.String(),
	}}}
	err := WriteTable(ctx, bucket, "n.parquet", cols, nil)
	if !errors.Is(err, ErrNestedColumn) {
		t.Errorf("expected ErrNestedColumn, got %v", err)
	}
}
