// Package writer persists downloaded samples to a blob bucket.
//
// A [Factory] creates one [Writer] per shard. Every sample, successful or
// not, contributes one row to the shard's metadata table
// ({prefix}{shard}.parquet). Successful samples are additionally stored
// according to the output format:
//
//	webdataset  {prefix}{shard}.tar (or .tar.zst) with <key>.<ext>, <key>.txt, <key>.json
//	files       {prefix}{shard}/<key>.<ext>, <key>.txt, <key>.json
//	parquet     image bytes in an extra <ext> column of the metadata table
//
// Writers are not safe for concurrent use. Objects are committed on
// [Writer.Close].
package writer
