package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/shardfetch/internal/hashing"
	"github.com/ligustah/shardfetch/internal/progress"
	"github.com/ligustah/shardfetch/internal/resize"
	"github.com/ligustah/shardfetch/internal/writer"
)

// Config defines configuration for the shardfetch CLI.
type Config struct {
	InputBucket  string `yaml:"input_bucket"`
	InputPrefix  string `yaml:"input_prefix"`
	OutputBucket string `yaml:"output_bucket"`
	OutputPrefix string `yaml:"output_prefix"`

	ThreadCount      int           `yaml:"thread_count"`
	Retries          int           `yaml:"retries"`
	Timeout          time.Duration `yaml:"timeout"`
	SamplesPerShard  int           `yaml:"samples_per_shard"`
	ShardCountDigits int           `yaml:"shard_count_digits"`
	ShardParallelism int           `yaml:"shard_parallelism"`

	URLColumn     string `yaml:"url_column"`
	CaptionColumn string `yaml:"caption_column"`
	BBoxColumn    string `yaml:"bbox_column"`

	ComputeHash string `yaml:"compute_hash"`
	ExtractExif bool   `yaml:"extract_exif"`
	SaveCaption bool   `yaml:"save_caption"`
	KeepSource  bool   `yaml:"keep_source"`

	UserAgentToken             string   `yaml:"user_agent_token"`
	DisallowedHeaderDirectives []string `yaml:"disallowed_header_directives"`
	RequestsPerSecond          float64  `yaml:"requests_per_second"`
	MaxBodySize                int64    `yaml:"max_body_size"`

	OutputFormat string `yaml:"output_format"`
	Compression  string `yaml:"compression"`

	Resize ResizeConfig `yaml:"resize"`
	Log    LogConfig    `yaml:"log"`

	MetricsAddress string `yaml:"metrics_address"`
	Progress       bool   `yaml:"progress"`
}

// ResizeConfig defines image processing.
type ResizeConfig struct {
	ImageSize      int     `yaml:"image_size"`
	Mode           string  `yaml:"mode"`
	OnlyIfBigger   bool    `yaml:"only_if_bigger"`
	EncodeFormat   string  `yaml:"encode_format"`
	EncodeQuality  int     `yaml:"encode_quality"`
	MinImageSize   int     `yaml:"min_image_size"`
	MaxAspectRatio float64 `yaml:"max_aspect_ratio"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ThreadCount:      256,
		Retries:          0,
		Timeout:          10 * time.Second,
		SamplesPerShard:  10000,
		ShardCountDigits: 5,
		ShardParallelism: 1,
		URLColumn:        "url",
		CaptionColumn:    "caption",
		ComputeHash:      "sha256",
		ExtractExif:      true,
		DisallowedHeaderDirectives: []string{
			"noai", "noimageai", "noindex", "noimageindex",
		},
		OutputFormat: writer.FormatWebDataset,
		Resize: ResizeConfig{
			ImageSize:     256,
			Mode:          resize.ModeBorder,
			EncodeFormat:  resize.FormatJPEG,
			EncodeQuality: 95,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and
// sizes. Booleans that default to true are pointers so false can be set.
type yamlConfig struct {
	InputBucket  string `yaml:"input_bucket"`
	InputPrefix  string `yaml:"input_prefix"`
	OutputBucket string `yaml:"output_bucket"`
	OutputPrefix string `yaml:"output_prefix"`

	ThreadCount      int    `yaml:"thread_count"`
	Retries          int    `yaml:"retries"`
	Timeout          string `yaml:"timeout"`
	SamplesPerShard  int    `yaml:"samples_per_shard"`
	ShardCountDigits int    `yaml:"shard_count_digits"`
	ShardParallelism int    `yaml:"shard_parallelism"`

	URLColumn     string `yaml:"url_column"`
	CaptionColumn string `yaml:"caption_column"`
	BBoxColumn    string `yaml:"bbox_column"`

	ComputeHash string `yaml:"compute_hash"`
	ExtractExif *bool  `yaml:"extract_exif"`
	SaveCaption bool   `yaml:"save_caption"`
	KeepSource  bool   `yaml:"keep_source"`

	UserAgentToken             string   `yaml:"user_agent_token"`
	DisallowedHeaderDirectives []string `yaml:"disallowed_header_directives"`
	RequestsPerSecond          float64  `yaml:"requests_per_second"`
	MaxBodySize                string   `yaml:"max_body_size"`

	OutputFormat string `yaml:"output_format"`
	Compression  string `yaml:"compression"`

	Resize ResizeConfig `yaml:"resize"`
	Log    LogConfig    `yaml:"log"`

	MetricsAddress string `yaml:"metrics_address"`
	Progress       bool   `yaml:"progress"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		InputBucket:                yc.InputBucket,
		InputPrefix:                yc.InputPrefix,
		OutputBucket:               yc.OutputBucket,
		OutputPrefix:               yc.OutputPrefix,
		ThreadCount:                yc.ThreadCount,
		Retries:                    yc.Retries,
		SamplesPerShard:            yc.SamplesPerShard,
		ShardCountDigits:           yc.ShardCountDigits,
		ShardParallelism:           yc.ShardParallelism,
		URLColumn:                  yc.URLColumn,
		CaptionColumn:              yc.CaptionColumn,
		BBoxColumn:                 yc.BBoxColumn,
		ComputeHash:                yc.ComputeHash,
		SaveCaption:                yc.SaveCaption,
		KeepSource:                 yc.KeepSource,
		UserAgentToken:             yc.UserAgentToken,
		DisallowedHeaderDirectives: yc.DisallowedHeaderDirectives,
		RequestsPerSecond:          yc.RequestsPerSecond,
		OutputFormat:               yc.OutputFormat,
		Compression:                yc.Compression,
		Resize:                     yc.Resize,
		Log:                        yc.Log,
		MetricsAddress:             yc.MetricsAddress,
		Progress:                   yc.Progress,
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		override.Timeout = d
	}
	if yc.MaxBodySize != "" {
		size, err := progress.ParseBytes(yc.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("parse max_body_size: %w", err)
		}
		override.MaxBodySize = size
	}

	cfg := Default().Merge(override)
	if yc.ExtractExif != nil {
		cfg.ExtractExif = *yc.ExtractExif
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SHARDFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	envString("SHARDFETCH_INPUT_BUCKET", &c.InputBucket)
	envString("SHARDFETCH_INPUT_PREFIX", &c.InputPrefix)
	envString("SHARDFETCH_OUTPUT_BUCKET", &c.OutputBucket)
	envString("SHARDFETCH_OUTPUT_PREFIX", &c.OutputPrefix)
	envString("SHARDFETCH_COMPUTE_HASH", &c.ComputeHash)
	envString("SHARDFETCH_USER_AGENT_TOKEN", &c.UserAgentToken)
	envString("SHARDFETCH_BBOX_COLUMN", &c.BBoxColumn)
	envString("SHARDFETCH_OUTPUT_FORMAT", &c.OutputFormat)
	envString("SHARDFETCH_COMPRESSION", &c.Compression)
	envString("SHARDFETCH_LOG_LEVEL", &c.Log.Level)
	envString("SHARDFETCH_LOG_FORMAT", &c.Log.Format)
	envString("SHARDFETCH_METRICS_ADDRESS", &c.MetricsAddress)

	envBool("SHARDFETCH_EXTRACT_EXIF", &c.ExtractExif)
	envBool("SHARDFETCH_SAVE_CAPTION", &c.SaveCaption)
	envBool("SHARDFETCH_KEEP_SOURCE", &c.KeepSource)
	envBool("SHARDFETCH_PROGRESS", &c.Progress)

	if v := os.Getenv("SHARDFETCH_DISALLOWED_HEADER_DIRECTIVES"); v != "" {
		c.DisallowedHeaderDirectives = strings.Split(v, ",")
	}

	for name, dst := range map[string]*int{
		"SHARDFETCH_THREAD_COUNT":       &c.ThreadCount,
		"SHARDFETCH_RETRIES":            &c.Retries,
		"SHARDFETCH_SAMPLES_PER_SHARD":  &c.SamplesPerShard,
		"SHARDFETCH_SHARD_COUNT_DIGITS": &c.ShardCountDigits,
		"SHARDFETCH_SHARD_PARALLELISM":  &c.ShardParallelism,
		"SHARDFETCH_IMAGE_SIZE":         &c.Resize.ImageSize,
	} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("SHARDFETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SHARDFETCH_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("SHARDFETCH_MAX_BODY_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse SHARDFETCH_MAX_BODY_SIZE: %w", err)
		}
		c.MaxBodySize = size
	}
	if v := os.Getenv("SHARDFETCH_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse SHARDFETCH_REQUESTS_PER_SECOND: %w", err)
		}
		c.RequestsPerSecond = f
	}

	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = v == "true" || v == "1"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.InputBucket == "" {
		return errors.New("config: input bucket is required")
	}
	if c.OutputBucket == "" {
		return errors.New("config: output bucket is required")
	}
	if c.InputBucket == c.OutputBucket &&
		(strings.HasPrefix(c.InputPrefix, c.OutputPrefix) || strings.HasPrefix(c.OutputPrefix, c.InputPrefix)) {
		return errors.New("config: input and output locations overlap")
	}
	if c.ThreadCount <= 0 {
		return errors.New("config: thread_count must be positive")
	}
	if c.Retries < 0 {
		return errors.New("config: retries must not be negative")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.SamplesPerShard <= 0 {
		return errors.New("config: samples_per_shard must be positive")
	}
	if c.ShardCountDigits <= 0 {
		return errors.New("config: shard_count_digits must be positive")
	}
	if c.ShardParallelism <= 0 {
		return errors.New("config: shard_parallelism must be positive")
	}
	if name := hashing.Normalize(c.ComputeHash); name != "" {
		if _, err := hashing.New(name); err != nil {
			return fmt.Errorf("config: compute_hash: %w", err)
		}
	}
	switch c.OutputFormat {
	case writer.FormatWebDataset, writer.FormatFiles, writer.FormatParquet:
	default:
		return fmt.Errorf("config: unsupported output_format %q", c.OutputFormat)
	}
	switch c.Compression {
	case writer.CompressionNone, writer.CompressionZstd:
	default:
		return fmt.Errorf("config: unsupported compression %q", c.Compression)
	}
	if _, err := resize.New(c.ResizeOptions()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ResizeOptions converts the resize section.
func (c *Config) ResizeOptions() resize.Options {
	return resize.Options{
		ImageSize:      c.Resize.ImageSize,
		Mode:           c.Resize.Mode,
		OnlyIfBigger:   c.Resize.OnlyIfBigger,
		EncodeFormat:   c.Resize.EncodeFormat,
		EncodeQuality:  c.Resize.EncodeQuality,
		MinImageSize:   c.Resize.MinImageSize,
		MaxAspectRatio: c.Resize.MaxAspectRatio,
	}
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so booleans can only be switched
// on.
func (c Config) Merge(override Config) Config {
	mergeString(&c.InputBucket, override.InputBucket)
	mergeString(&c.InputPrefix, override.InputPrefix)
	mergeString(&c.OutputBucket, override.OutputBucket)
	mergeString(&c.OutputPrefix, override.OutputPrefix)
	mergeString(&c.URLColumn, override.URLColumn)
	mergeString(&c.CaptionColumn, override.CaptionColumn)
	mergeString(&c.BBoxColumn, override.BBoxColumn)
	mergeString(&c.ComputeHash, override.ComputeHash)
	mergeString(&c.UserAgentToken, override.UserAgentToken)
	mergeString(&c.OutputFormat, override.OutputFormat)
	mergeString(&c.Compression, override.Compression)
	mergeString(&c.Resize.Mode, override.Resize.Mode)
	mergeString(&c.Resize.EncodeFormat, override.Resize.EncodeFormat)
	mergeString(&c.Log.Level, override.Log.Level)
	mergeString(&c.Log.Format, override.Log.Format)
	mergeString(&c.MetricsAddress, override.MetricsAddress)

	mergeInt(&c.ThreadCount, override.ThreadCount)
	mergeInt(&c.Retries, override.Retries)
	mergeInt(&c.SamplesPerShard, override.SamplesPerShard)
	mergeInt(&c.ShardCountDigits, override.ShardCountDigits)
	mergeInt(&c.ShardParallelism, override.ShardParallelism)
	mergeInt(&c.Resize.ImageSize, override.Resize.ImageSize)
	mergeInt(&c.Resize.EncodeQuality, override.Resize.EncodeQuality)
	mergeInt(&c.Resize.MinImageSize, override.Resize.MinImageSize)

	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.MaxBodySize != 0 {
		c.MaxBodySize = override.MaxBodySize
	}
	if override.RequestsPerSecond != 0 {
		c.RequestsPerSecond = override.RequestsPerSecond
	}
	if override.Resize.MaxAspectRatio != 0 {
		c.Resize.MaxAspectRatio = override.Resize.MaxAspectRatio
	}
	if override.DisallowedHeaderDirectives != nil {
		c.DisallowedHeaderDirectives = override.DisallowedHeaderDirectives
	}

	if override.ExtractExif {
		c.ExtractExif = true
	}
	if override.SaveCaption {
		c.SaveCaption = true
	}
	if override.KeepSource {
		c.KeepSource = true
	}
	if override.Resize.OnlyIfBigger {
		c.Resize.OnlyIfBigger = true
	}
	if override.Progress {
		c.Progress = true
	}
	return c
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
