package sharded

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Extension is the object suffix of shard files.
const Extension = ".parquet"

// ErrNestedColumn is returned for group columns that are not lists.
var ErrNestedColumn = errors.New("sharded: nested columns are not supported")

// Shard identifies one shard object in a bucket.
type Shard struct {
	ID  int
	Key string
}

// Table is a fully loaded shard.
type Table struct {
	fields []Column
	names  []string
	rows   [][]any
}

// Open reads the shard at key into memory.
//
// Returns an error if:
//   - The object doesn't exist (error wraps gcerrors.NotFound)
//   - The object is not a valid parquet file
//   - The schema contains nested groups other than lists
//   - The context is cancelled (context.Canceled or context.DeadlineExceeded)
func Open(ctx context.Context, bucket *blob.Bucket, key string) (*Table, error) {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("sharded: read shard %s: %w", key, err)
	}
	return Decode(bytes.NewReader(data), int64(len(data)))
}

// Decode reads a parquet table from r.
func Decode(r io.ReaderAt, size int64) (*Table, error) {
	f, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("sharded: open parquet: %w", err)
	}

	schema := f.Schema()
	cols, err := resolveColumns(schema)
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for _, field := range schema.Fields() {
		t.fields = append(t.fields, Column{Name: field.Name(), Node: field})
		t.names = append(t.names, field.Name())
	}

	rows, err := readRows(f.RowGroups(), cols, len(t.fields))
	if err != nil {
		return nil, err
	}
	t.rows = rows
	return t, nil
}

// Fields returns the table's top-level columns.
func (t *Table) Fields() []Column {
	return t.fields
}

// Names returns the column names in schema order.
func (t *Table) Names() []string {
	return t.names
}

// Rows returns the decoded rows. Row values are positional, matching Names.
func (t *Table) Rows() [][]any {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, n := range t.names {
		if n == name {
			return i
		}
	}
	return -1
}

// List returns the shards under prefix, sorted by id.
func List(ctx context.Context, bucket *blob.Bucket, prefix string) ([]Shard, error) {
	var keys []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sharded: list %s: %w", prefix, err)
		}
		if obj.IsDir || !strings.HasSuffix(obj.Key, Extension) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	shards := make([]Shard, len(keys))
	numeric := true
	for i, key := range keys {
		id, err := strconv.Atoi(strings.TrimSuffix(path.Base(key), Extension))
		if err != nil || id < 0 {
			numeric = false
		}
		shards[i] = Shard{ID: id, Key: key}
	}
	if !numeric {
		for i := range shards {
			shards[i].ID = i
		}
	}
	sort.SliceStable(shards, func(i, j int) bool { return shards[i].ID < shards[j].ID })
	return shards, nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
