package sharded

import (
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// column maps a leaf column to its top-level field.
type column struct {
	field    int
	repeated bool
}

const readBatch = 128

func resolveColumns(schema *parquet.Schema) ([]column, error) {
	fieldIndex := make(map[string]int)
	for i, f := range schema.Fields() {
		fieldIndex[f.Name()] = i
	}

	paths := schema.Columns()
	cols := make([]column, len(paths))
	seen := make(map[int]bool)
	for _, p := range paths {
		leaf, ok := schema.Lookup(p...)
		if !ok {
			return nil, fmt.Errorf("sharded: column %v not found", p)
		}
		idx := fieldIndex[p[0]]
		if seen[idx] {
			return nil, fmt.Errorf("%w: %s", ErrNestedColumn, p[0])
		}
		seen[idx] = true
		cols[leaf.ColumnIndex] = column{field: idx, repeated: leaf.MaxRepetitionLevel > 0}
	}
	return cols, nil
}

func readRows(groups []parquet.RowGroup, cols []column, width int) ([][]any, error) {
	var out [][]any
	buf := make([]parquet.Row, readBatch)

	for _, rg := range groups {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				out = append(out, decodeRow(row, cols, width))
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("sharded: read rows: %w", err)
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("sharded: close rows: %w", err)
		}
	}
	return out, nil
}

func decodeRow(row parquet.Row, cols []column, width int) []any {
	values := make([]any, width)
	for _, v := range row {
		c := cols[v.Column()]
		if !c.repeated {
			values[c.field] = decodeValue(v)
			continue
		}
		if v.IsNull() {
			continue
		}
		list, _ := values[c.field].([]any)
		values[c.field] = append(list, decodeValue(v))
	}
	return values
}

func decodeValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
