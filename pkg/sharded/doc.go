// Package sharded reads and writes shard tables in cloud storage.
//
// A shard is a single parquet file holding an ordered sequence of rows.
// Shards are read once, fully, and removed by the caller after their
// rows have been processed. The package is storage-agnostic via
// gocloud.dev/blob.
//
// # Reading
//
// Use [Open] to load a shard into a [Table]. Column values are decoded
// into plain Go values:
//
//	BOOLEAN        bool
//	INT32, INT64   int32, int64
//	FLOAT, DOUBLE  float32, float64
//	BYTE_ARRAY     string
//	repeated       []any
//	null           nil
//
// Nested groups other than lists are not supported.
//
// # Listing
//
// [List] enumerates the *.parquet objects under a prefix. Shard ids are
// taken from numeric base names ("00012.parquet" is shard 12) when every
// name is numeric, otherwise from the position in the sorted listing.
//
// # Writing
//
// [NewTableWriter] streams positional rows to any io.Writer with a given
// set of fields; [WriteTable] writes a whole table to a bucket.
//
// # Storage Layout
//
//	{bucket}/{prefix}00000.parquet
//	{bucket}/{prefix}00001.parquet
//	...
//
// See example_test.go for usage examples.
package sharded
