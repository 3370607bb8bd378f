// Package downloader runs the per-shard download pipeline.
//
// For each shard the [Runner] loads the rows, fans the fetches out through
// a [Gate] that bounds concurrency, and hands every [Outcome] to a single
// [Processor] through a [Queue]. The processor classifies outcomes,
// resizes images, adds EXIF and hash metadata, and writes one record per
// row through the shard's [SampleWriter].
//
// # Completion
//
// After every admitted fetch has emitted its outcome the coordinator
// enqueues a sentinel. The consumer stops on the sentinel, and the
// coordinator only returns after every queued item has been acknowledged.
// The shard source is removed after that, once the writer has closed.
//
// # Failure isolation
//
// Per-row failures become data: failed_to_download, failed_to_resize or
// failed_other records. Shard-level failures are returned by
// [Runner.RunShard]; [Runner.Run] and [Runner.RunAll] turn them into a
// failed [Result] without affecting other shards.
//
// # Usage
//
//	runner, err := downloader.NewRunner(input, client, resizer, newWriter, sink, downloader.Options{
//	    ThreadCount: 64,
//	    Retries:     2,
//	})
//	results := runner.RunAll(ctx, shards, 4)
package downloader
