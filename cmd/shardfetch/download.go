package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/shardfetch/internal/config"
	"github.com/ligustah/shardfetch/internal/downloader"
	fetchhttp "github.com/ligustah/shardfetch/internal/http"
	"github.com/ligustah/shardfetch/internal/logging"
	"github.com/ligustah/shardfetch/internal/metrics"
	"github.com/ligustah/shardfetch/internal/progress"
	"github.com/ligustah/shardfetch/internal/resize"
	"github.com/ligustah/shardfetch/internal/stats"
	"github.com/ligustah/shardfetch/internal/writer"
	"github.com/ligustah/shardfetch/pkg/sharded"
)

// runDownload lists the input shards, downloads every URL they reference
// and writes the results as output shards next to per-shard stats.
func runDownload(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	def := config.Default()
	configPath := fs.String("config", "", "YAML configuration file")
	inputBucket := fs.String("input", "", "Input bucket URL (required)")
	inputPrefix := fs.String("input-prefix", "", "Prefix of input shards")
	outputBucket := fs.String("output", "", "Output bucket URL (required)")
	outputPrefix := fs.String("output-prefix", "", "Prefix of output objects")
	threadCount := fs.Int("threads", def.ThreadCount, "Concurrent fetches per shard")
	retries := fs.Int("retries", def.Retries, "Extra attempts per URL")
	timeout := fs.Duration("timeout", def.Timeout, "Total time allowed per request")
	samplesPerShard := fs.Int("samples-per-shard", def.SamplesPerShard, "Maximum rows per input shard")
	shardCountDigits := fs.Int("shard-digits", def.ShardCountDigits, "Width of the shard id in keys")
	parallelism := fs.Int("parallelism", def.ShardParallelism, "Shards processed at once")
	urlColumn := fs.String("url-column", def.URLColumn, "Column holding the URLs")
	captionColumn := fs.String("caption-column", def.CaptionColumn, "Column holding captions")
	bboxColumn := fs.String("bbox-column", "", "Column holding normalized bounding boxes")
	computeHash := fs.String("hash", def.ComputeHash, "Hash of the original bytes (md5, sha1, sha256, sha512, xxh64, none)")
	extractExif := fs.Bool("exif", def.ExtractExif, "Extract EXIF metadata")
	saveCaption := fs.Bool("save-caption", false, "Store captions next to images")
	keepSource := fs.Bool("keep-source", false, "Keep input shards after processing")
	userAgentToken := fs.String("user-agent-token", "", "Token appended to the User-Agent and matched against X-Robots-Tag")
	directives := fs.String("disallowed-directives", strings.Join(def.DisallowedHeaderDirectives, ","), "Comma separated X-Robots-Tag directives that block a download")
	rps := fs.Float64("rps", 0, "Request rate limit across a shard, 0 disables")
	maxBodySize := fs.String("max-body-size", "", "Maximum response body size, e.g. 20MiB")
	outputFormat := fs.String("format", def.OutputFormat, "Output format (webdataset, files, parquet)")
	compression := fs.String("compression", "", "Compression of webdataset archives (zstd)")
	imageSize := fs.Int("image-size", def.Resize.ImageSize, "Target image size")
	resizeMode := fs.String("resize-mode", def.Resize.Mode, "Resize mode (no, keep_ratio, center_crop, border)")
	onlyIfBigger := fs.Bool("resize-only-if-bigger", false, "Only downscale")
	encodeFormat := fs.String("encode-format", def.Resize.EncodeFormat, "Encoded image format (jpg, png)")
	encodeQuality := fs.Int("encode-quality", def.Resize.EncodeQuality, "JPEG quality")
	minImageSize := fs.Int("min-image-size", 0, "Reject images with a smaller side")
	maxAspectRatio := fs.Float64("max-aspect-ratio", 0, "Reject images with a larger aspect ratio, 0 disables")
	logLevel := fs.String("log-level", def.Log.Level, "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", def.Log.Format, "Log format (text, json)")
	metricsAddr := fs.String("metrics-address", "", "Serve Prometheus metrics on this address")
	showProgress := fs.Bool("progress", false, "Show progress output")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: shardfetch run [options]

Download the URLs listed in every input shard, resize the images and write
output shards with per-sample metadata and per-shard stats.

Settings are read from -config, then SHARDFETCH_* environment variables,
then explicitly set flags.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputBucket = *inputBucket
		case "input-prefix":
			cfg.InputPrefix = *inputPrefix
		case "output":
			cfg.OutputBucket = *outputBucket
		case "output-prefix":
			cfg.OutputPrefix = *outputPrefix
		case "threads":
			cfg.ThreadCount = *threadCount
		case "retries":
			cfg.Retries = *retries
		case "timeout":
			cfg.Timeout = *timeout
		case "samples-per-shard":
			cfg.SamplesPerShard = *samplesPerShard
		case "shard-digits":
			cfg.ShardCountDigits = *shardCountDigits
		case "parallelism":
			cfg.ShardParallelism = *parallelism
		case "url-column":
			cfg.URLColumn = *urlColumn
		case "caption-column":
			cfg.CaptionColumn = *captionColumn
		case "bbox-column":
			cfg.BBoxColumn = *bboxColumn
		case "hash":
			cfg.ComputeHash = *computeHash
		case "exif":
			cfg.ExtractExif = *extractExif
		case "save-caption":
			cfg.SaveCaption = *saveCaption
		case "keep-source":
			cfg.KeepSource = *keepSource
		case "user-agent-token":
			cfg.UserAgentToken = *userAgentToken
		case "disallowed-directives":
			cfg.DisallowedHeaderDirectives = splitList(*directives)
		case "rps":
			cfg.RequestsPerSecond = *rps
		case "max-body-size":
			size, err := progress.ParseBytes(*maxBodySize)
			if err != nil {
				flagErr = err
			}
			cfg.MaxBodySize = size
		case "format":
			cfg.OutputFormat = *outputFormat
		case "compression":
			cfg.Compression = *compression
		case "image-size":
			cfg.Resize.ImageSize = *imageSize
		case "resize-mode":
			cfg.Resize.Mode = *resizeMode
		case "resize-only-if-bigger":
			cfg.Resize.OnlyIfBigger = *onlyIfBigger
		case "encode-format":
			cfg.Resize.EncodeFormat = *encodeFormat
		case "encode-quality":
			cfg.Resize.EncodeQuality = *encodeQuality
		case "min-image-size":
			cfg.Resize.MinImageSize = *minImageSize
		case "max-aspect-ratio":
			cfg.Resize.MaxAspectRatio = *maxAspectRatio
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "metrics-address":
			cfg.MetricsAddress = *metricsAddr
		case "progress":
			cfg.Progress = *showProgress
		}
	})
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "Invalid max body size: %v\n", flagErr)
		return ExitInvalidArgs
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	return download(cfg)
}

func download(cfg config.Config) int {
	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	runID := logging.NewRunID()
	log := logging.Component("cli").With("run_id", runID)

	ctx, cancel := signalContext(func() {
		fmt.Fprintln(os.Stderr, "\n[shardfetch] Received interrupt, shutting down...")
	})
	defer cancel()

	input, err := blob.OpenBucket(ctx, cfg.InputBucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening input bucket: %v\n", err)
		return ExitStorageError
	}
	defer input.Close()

	output := input
	if cfg.OutputBucket != cfg.InputBucket {
		output, err = blob.OpenBucket(ctx, cfg.OutputBucket)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening output bucket: %v\n", err)
			return ExitStorageError
		}
		defer output.Close()
	}

	shards, err := sharded.List(ctx, input, cfg.InputPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing input shards: %v\n", err)
		return ExitStorageError
	}
	if len(shards) == 0 {
		fmt.Fprintf(os.Stderr, "[shardfetch] No shards found under %s/%s\n", cfg.InputBucket, cfg.InputPrefix)
		return ExitSuccess
	}

	var m *metrics.Metrics
	if cfg.MetricsAddress != "" {
		m = metrics.Init("shardfetch")
		go func() {
			if err := metrics.StartServer(cfg.MetricsAddress); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalShards:    len(shards),
			ThreadCount:    cfg.ThreadCount,
			Parallelism:    cfg.ShardParallelism,
			UpdateInterval: 5 * time.Second,
			Source:         cfg.InputBucket,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	client := fetchhttp.NewClient(fetchhttp.Options{
		MaxIdleConnsPerHost:  cfg.ThreadCount * 2,
		Timeout:              cfg.Timeout,
		UserAgentToken:       cfg.UserAgentToken,
		DisallowedDirectives: cfg.DisallowedHeaderDirectives,
		RequestsPerSecond:    cfg.RequestsPerSecond,
		MaxBodySize:          cfg.MaxBodySize,
		OnRetry:              func(error) { m.IncFetchRetries() },
	})

	resizer, err := resize.New(cfg.ResizeOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	factory, err := writer.NewFactory(output, writer.Options{
		Format:      cfg.OutputFormat,
		Compression: cfg.Compression,
		Prefix:      cfg.OutputPrefix,
		SaveCaption: cfg.SaveCaption,
		ShardDigits: cfg.ShardCountDigits,
		Extension:   resizer.Extension(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	newWriter := func(ctx context.Context, shardID int, columns []sharded.Column) (downloader.SampleWriter, error) {
		return factory.New(ctx, shardID, columns)
	}

	runner, err := downloader.NewRunner(input, client, resizer, newWriter,
		stats.NewBucketSink(output, cfg.OutputPrefix, cfg.ShardCountDigits),
		downloader.Options{
			ThreadCount:      cfg.ThreadCount,
			Retries:          cfg.Retries,
			SamplesPerShard:  cfg.SamplesPerShard,
			ShardCountDigits: cfg.ShardCountDigits,
			URLColumn:        cfg.URLColumn,
			CaptionColumn:    cfg.CaptionColumn,
			BBoxColumn:       cfg.BBoxColumn,
			ComputeHash:      cfg.ComputeHash,
			ExtractExif:      cfg.ExtractExif,
			KeepSource:       cfg.KeepSource,
			RunID:            runID,
			Metrics:          m,
			Progress:         reporter,
		})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	log.Info("starting run", "shards", len(shards), "input", cfg.InputBucket, "output", cfg.OutputBucket)
	results := runner.RunAll(ctx, shards, cfg.ShardParallelism)

	var failed int
	var samples, successes int64
	for _, res := range results {
		if !res.OK() {
			failed++
			log.Error("shard failed", "shard_id", res.ShardID, "source", res.Key, "error", res.Err)
			continue
		}
		samples += res.Stats.Count
		successes += res.Stats.Successes
	}

	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "[shardfetch] Run interrupted, unprocessed shards were left in place")
		return ExitGeneralError
	}

	fmt.Fprintf(os.Stderr, "[shardfetch] Run complete: %d/%d shards, %d/%d samples downloaded\n",
		len(results)-failed, len(results), successes, samples)
	if failed > 0 {
		log.Warn("some shards failed", "failed", failed)
		return ExitShardsFailed
	}
	return ExitSuccess
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
