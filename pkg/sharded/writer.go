package sharded

import (
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"
)

// Column is a named parquet node.
type Column struct {
	Name string
	Node parquet.Node
}

// Optional returns an optional column of the given node.
func Optional(name string, node parquet.Node) Column {
	return Column{Name: name, Node: parquet.Optional(node)}
}

// leaf describes where a field's values go in a row.
type leaf struct {
	index    int
	kind     parquet.Kind
	maxDef   int
	repeated bool
}

// TableWriter streams positional rows as parquet.
// It is not safe for concurrent use.
type TableWriter struct {
	fields []Column
	leaves []leaf
	w      *parquet.Writer
	row    parquet.Row
}

// NewTableWriter returns a writer for rows whose values follow fields.
func NewTableWriter(w io.Writer, fields []Column) (*TableWriter, error) {
	group := make(parquet.Group, len(fields))
	for _, f := range fields {
		if _, dup := group[f.Name]; dup {
			return nil, fmt.Errorf("sharded: duplicate column %s", f.Name)
		}
		group[f.Name] = f.Node
	}
	schema := parquet.NewSchema("shard", group)

	leaves := make([]leaf, len(fields))
	for i, f := range fields {
		path, err := leafPath(schema, f.Name)
		if err != nil {
			return nil, err
		}
		lc, _ := schema.Lookup(path...)
		leaves[i] = leaf{
			index:    lc.ColumnIndex,
			kind:     lc.Node.Type().Kind(),
			maxDef:   lc.MaxDefinitionLevel,
			repeated: lc.MaxRepetitionLevel > 0,
		}
	}

	return &TableWriter{
		fields: fields,
		leaves: leaves,
		w:      parquet.NewWriter(w, schema),
	}, nil
}

func leafPath(schema *parquet.Schema, name string) ([]string, error) {
	var found []string
	for _, p := range schema.Columns() {
		if p[0] != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s", ErrNestedColumn, name)
		}
		found = p
	}
	if found == nil {
		return nil, fmt.Errorf("sharded: no leaf column for %s", name)
	}
	return found, nil
}

// Write appends one row. values must have one entry per field; nil is
// written as null and []any/[]float64 as a list for repeated fields.
func (tw *TableWriter) Write(values []any) error {
	if len(values) != len(tw.fields) {
		return fmt.Errorf("sharded: row has %d values, schema has %d fields", len(values), len(tw.fields))
	}

	byColumn := make([][]parquet.Value, len(tw.leaves))
	for i, v := range values {
		l := tw.leaves[i]
		vals, err := l.encode(v)
		if err != nil {
			return fmt.Errorf("sharded: column %s: %w", tw.fields[i].Name, err)
		}
		byColumn[l.index] = vals
	}

	tw.row = tw.row[:0]
	for _, vals := range byColumn {
		tw.row = append(tw.row, vals...)
	}
	if _, err := tw.w.WriteRows([]parquet.Row{tw.row}); err != nil {
		return fmt.Errorf("sharded: write row: %w", err)
	}
	return nil
}

// Close flushes buffered rows and writes the parquet footer. It does not
// close the underlying writer.
func (tw *TableWriter) Close() error {
	if err := tw.w.Close(); err != nil {
		return fmt.Errorf("sharded: close writer: %w", err)
	}
	return nil
}

func (l leaf) encode(v any) ([]parquet.Value, error) {
	if v == nil {
		return []parquet.Value{parquet.NullValue().Level(0, 0, l.index)}, nil
	}

	if !l.repeated {
		pv, err := convert(v, l.kind)
		if err != nil {
			return nil, err
		}
		return []parquet.Value{pv.Level(0, l.maxDef, l.index)}, nil
	}

	items := toList(v)
	if len(items) == 0 {
		return []parquet.Value{parquet.NullValue().Level(0, 0, l.index)}, nil
	}
	out := make([]parquet.Value, 0, len(items))
	for i, item := range items {
		pv, err := convert(item, l.kind)
		if err != nil {
			return nil, err
		}
		rep := 0
		if i > 0 {
			rep = 1
		}
		out = append(out, pv.Level(rep, l.maxDef, l.index))
	}
	return out, nil
}

func toList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []float64:
		out := make([]any, len(list))
		for i, f := range list {
			out[i] = f
		}
		return out
	case []float32:
		out := make([]any, len(list))
		for i, f := range list {
			out[i] = f
		}
		return out
	default:
		return []any{v}
	}
}

func convert(v any, kind parquet.Kind) (parquet.Value, error) {
	switch kind {
	case parquet.Boolean:
		if b, ok := v.(bool); ok {
			return parquet.BooleanValue(b), nil
		}
	case parquet.Int32:
		if n, ok := toInt64(v); ok {
			return parquet.Int32Value(int32(n)), nil
		}
	case parquet.Int64:
		if n, ok := toInt64(v); ok {
			return parquet.Int64Value(n), nil
		}
	case parquet.Float:
		if f, ok := toFloat64(v); ok {
			return parquet.FloatValue(float32(f)), nil
		}
	case parquet.Double:
		if f, ok := toFloat64(v); ok {
			return parquet.DoubleValue(f), nil
		}
	case parquet.ByteArray, parquet.FixedLenByteArray:
		switch s := v.(type) {
		case string:
			return parquet.ByteArrayValue([]byte(s)), nil
		case []byte:
			return parquet.ByteArrayValue(s), nil
		}
	}
	return parquet.Value{}, fmt.Errorf("cannot store %T as %v", v, kind)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	}
	return 0, false
}

// WriteTable writes rows with the given fields to key in bucket. Nothing
// is committed if any row fails to encode.
func WriteTable(ctx context.Context, bucket *blob.Bucket, key string, fields []Column, rows [][]any) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bw, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("sharded: create %s: %w", key, err)
	}
	abort := func(err error) error {
		cancel()
		bw.Close()
		return err
	}

	tw, err := NewTableWriter(bw, fields)
	if err != nil {
		return abort(err)
	}
	for _, row := range rows {
		if err := tw.Write(row); err != nil {
			return abort(err)
		}
	}
	if err := tw.Close(); err != nil {
		return abort(err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("sharded: commit %s: %w", key, err)
	}
	return nil
}
