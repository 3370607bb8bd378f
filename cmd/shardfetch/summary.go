package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"gocloud.dev/blob"

	"github.com/ligustah/shardfetch/internal/stats"
)

// runSummary folds the per-shard stats written by a run into one report.
func runSummary(args []string) int {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)

	bucket := fs.String("bucket", "", "Output bucket URL (required)")
	prefix := fs.String("prefix", "", "Prefix of output objects")
	maxKeys := fs.Int("max-keys", stats.DefaultMaxKeys, "Distinct status messages kept")
	top := fs.Int("top", 10, "Status messages to print")
	asJSON := fs.Bool("json", false, "Print the summary as JSON")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: shardfetch summary [options]

Aggregate the "<shard>_stats.json" objects written by a run.

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

	all, err := stats.Load(ctx, bkt, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	sum := stats.Summarize(all, *maxKeys)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		return ExitSuccess
	}

	printSummary(os.Stdout, sum, *top)
	return ExitSuccess
}

func printSummary(w io.Writer, sum stats.Summary, top int) {
	fmt.Fprintf(w, "Shards: %d\n", sum.Shards)
	fmt.Fprintf(w, "Samples: %d\n", sum.Count)
	fmt.Fprintf(w, "Successes: %d (%.1f%%)\n", sum.Successes, sum.SuccessRate()*100)
	fmt.Fprintf(w, "Failed to download: %d\n", sum.FailedToDownload)
	fmt.Fprintf(w, "Failed to resize: %d\n", sum.FailedToResize)
	fmt.Fprintf(w, "Failed other: %d\n", sum.FailedOther)
	fmt.Fprintf(w, "Wall time: %s\n", sum.WallTime)

	common := stats.MostCommon(sum.StatusDict, top)
	if len(common) == 0 {
		return
	}
	fmt.Fprintln(w, "\nStatuses:")
	for _, kc := range common {
		fmt.Fprintf(w, "  %8d  %s\n", kc.Count, kc.Key)
	}
}
