package sharded

import (
	"errors"
	"testing"
)

func TestRequireColumns(t *testing.T) {
	table := &Table{names: []string{"url", "caption"}}

	if err := RequireColumns(table, "url"); err != nil {
		t.Errorf("expected url to be present, got %v", err)
	}

	err := RequireColumns(table, "url", "bbox", "key")
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if got := err.Error(); got != "sharded: missing column: bbox, key (have url, caption)" {
		t.Errorf("unexpected message %q", got)
	}
}
