// Package progress provides progress reporting for shard runs.
//
// This package outputs human-readable progress information to stdout,
// including completed shards, sample throughput, success rate and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalShards: len(shards),
//	    Output:      os.Stdout,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Update as samples and shards complete
//	reporter.SampleDone(true)
//	reporter.ShardDone(true)
//
// # Output Format
//
//	[shardfetch] Processing: s3://laion/shards/
//	[shardfetch] Shards: 128 | Parallel shards: 4 | Threads per shard: 256
//	[shardfetch] Progress: 45.2% | Samples: 578560 (91.3% ok) | Speed: 1204.5 samples/s | ETA: 18m 32s
//	[shardfetch] Shards: 57 completed | 1 failed | 4 in-progress
package progress
