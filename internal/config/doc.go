// Package config defines configuration structures for the shardfetch CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (SHARDFETCH_ prefix)
//   - YAML configuration file
//
// Buckets are gocloud.dev URLs (s3://, gs://, file://, mem://).
//
// # Example
//
//	input_bucket: s3://laion?region=us-east-1
//	input_prefix: shards/
//	output_bucket: s3://laion-out?region=us-east-1
//	thread_count: 64
//	retries: 2
//	timeout: 10s
//	compute_hash: sha256
//	user_agent_token: mybot
//	disallowed_header_directives: [noai, noindex]
//	output_format: webdataset
//	compression: zstd
//	resize:
//	  image_size: 384
//	  mode: center_crop
package config
