package main

import (
	"flag"
	"fmt"
	"os"

	"gocloud.dev/blob"

	"github.com/ligustah/shardfetch/pkg/sharded"
)

// runValidate checks that every input shard can be decoded and carries
// the columns a run needs. It does not fetch any URL.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)

	bucket := fs.String("bucket", "", "Input bucket URL (required)")
	prefix := fs.String("prefix", "", "Prefix of input shards")
	urlColumn := fs.String("url-column", "url", "Column holding the URLs")
	bboxColumn := fs.String("bbox-column", "", "Bounding box column to require")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: shardfetch validate [options]

Verify that every input shard is a readable parquet file with the URL column.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *bucket == "" {
		fmt.Fprintln(os.Stderr, "Error: -bucket is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext(nil)
	defer cancel()

	bkt, err := blob.OpenBucket(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	shards, err := sharded.List(ctx, bkt, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	required := []string{*urlColumn}
	if *bboxColumn != "" {
		required = append(required, *bboxColumn)
	}

	var rows int
	var errs []string
	for _, shard := range shards {
		table, err := sharded.Open(ctx, bkt, shard.Key)
		if err == nil {
			err = sharded.RequireColumns(table, required...)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", shard.Key, err))
			continue
		}
		rows += table.Len()
	}

	fmt.Printf("Shards: %d\n", len(shards))
	fmt.Printf("Rows: %d\n", rows)

	if len(errs) == 0 {
		fmt.Println("Status: VALID")
		return ExitSuccess
	}

	fmt.Println("Status: INVALID")
	fmt.Println("\nErrors:")
	for _, e := range errs {
		fmt.Printf("  - %s\n", e)
	}
	return ExitValidationFailed
}
