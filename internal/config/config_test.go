package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.ThreadCount != 256 {
		t.Errorf("expected default thread count 256, got %d", cfg.ThreadCount)
	}
	if cfg.Retries != 0 {
		t.Errorf("expected default retries 0, got %d", cfg.Retries)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("expected default timeout 10s, got %v", cfg.Timeout)
	}
	if cfg.SamplesPerShard != 10000 {
		t.Errorf("expected default samples per shard 10000, got %d", cfg.SamplesPerShard)
	}
	if cfg.ShardCountDigits != 5 {
		t.Errorf("expected default shard count digits 5, got %d", cfg.ShardCountDigits)
	}
	if cfg.ComputeHash != "sha256" {
		t.Errorf("expected default hash sha256, got %q", cfg.ComputeHash)
	}
	if !cfg.ExtractExif {
		t.Error("expected exif extraction enabled by default")
	}
	want := []string{"noai", "noimageai", "noindex", "noimageindex"}
	if !reflect.DeepEqual(cfg.DisallowedHeaderDirectives, want) {
		t.Errorf("expected default directives %v, got %v", want, cfg.DisallowedHeaderDirectives)
	}
	if cfg.OutputFormat != "webdataset" {
		t.Errorf("expected default output format webdataset, got %q", cfg.OutputFormat)
	}
	if cfg.Resize.ImageSize != 256 || cfg.Resize.Mode != "border" {
		t.Errorf("unexpected default resize config %+v", cfg.Resize)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
input_bucket: mem://in
output_bucket: mem://out
thread_count: 32
retries: 2
timeout: 30s
max_body_size: 20MiB
compute_hash: xxh64
extract_exif: false
progress: true
disallowed_header_directives: [noai]
output_format: files
resize:
  image_size: 512
  mode: center_crop
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.ThreadCount != 32 {
		t.Errorf("expected thread count 32, got %d", cfg.ThreadCount)
	}
	if cfg.Retries != 2 {
		t.Errorf("expected retries 2, got %d", cfg.Retries)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.MaxBodySize != 20<<20 {
		t.Errorf("expected max body size 20MiB, got %d", cfg.MaxBodySize)
	}
	if cfg.ComputeHash != "xxh64" {
		t.Errorf("expected hash xxh64, got %q", cfg.ComputeHash)
	}
	if cfg.ExtractExif {
		t.Error("expected exif extraction disabled")
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if !reflect.DeepEqual(cfg.DisallowedHeaderDirectives, []string{"noai"}) {
		t.Errorf("unexpected directives %v", cfg.DisallowedHeaderDirectives)
	}
	if cfg.Resize.ImageSize != 512 || cfg.Resize.Mode != "center_crop" {
		t.Errorf("unexpected resize config %+v", cfg.Resize)
	}
	// Unset fields keep their defaults.
	if cfg.SamplesPerShard != 10000 {
		t.Errorf("expected samples per shard preserved, got %d", cfg.SamplesPerShard)
	}
	if cfg.Resize.EncodeQuality != 95 {
		t.Errorf("expected encode quality preserved, got %d", cfg.Resize.EncodeQuality)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromYAMLInvalidTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("timeout: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHARDFETCH_INPUT_BUCKET", "s3://in")
	t.Setenv("SHARDFETCH_THREAD_COUNT", "64")
	t.Setenv("SHARDFETCH_RETRIES", "3")
	t.Setenv("SHARDFETCH_TIMEOUT", "500ms")
	t.Setenv("SHARDFETCH_MAX_BODY_SIZE", "1GiB")
	t.Setenv("SHARDFETCH_EXTRACT_EXIF", "false")
	t.Setenv("SHARDFETCH_PROGRESS", "true")
	t.Setenv("SHARDFETCH_DISALLOWED_HEADER_DIRECTIVES", "noai,noindex")
	t.Setenv("SHARDFETCH_REQUESTS_PER_SECOND", "12.5")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.InputBucket != "s3://in" {
		t.Errorf("expected input bucket s3://in, got %q", cfg.InputBucket)
	}
	if cfg.ThreadCount != 64 {
		t.Errorf("expected thread count 64, got %d", cfg.ThreadCount)
	}
	if cfg.Retries != 3 {
		t.Errorf("expected retries 3, got %d", cfg.Retries)
	}
	if cfg.Timeout != 500*time.Millisecond {
		t.Errorf("expected timeout 500ms, got %v", cfg.Timeout)
	}
	if cfg.MaxBodySize != 1<<30 {
		t.Errorf("expected max body size 1GiB, got %d", cfg.MaxBodySize)
	}
	if cfg.ExtractExif {
		t.Error("expected exif extraction disabled")
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if !reflect.DeepEqual(cfg.DisallowedHeaderDirectives, []string{"noai", "noindex"}) {
		t.Errorf("unexpected directives %v", cfg.DisallowedHeaderDirectives)
	}
	if cfg.RequestsPerSecond != 12.5 {
		t.Errorf("expected 12.5 requests per second, got %v", cfg.RequestsPerSecond)
	}
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("SHARDFETCH_THREAD_COUNT", "many")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid thread count")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.InputBucket = "mem://in"
		cfg.OutputBucket = "mem://out"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"hash disabled", func(c *Config) { c.ComputeHash = "none" }, false},
		{"empty hash", func(c *Config) { c.ComputeHash = "" }, false},
		{"missing input bucket", func(c *Config) { c.InputBucket = "" }, true},
		{"missing output bucket", func(c *Config) { c.OutputBucket = "" }, true},
		{"invalid thread count", func(c *Config) { c.ThreadCount = 0 }, true},
		{"negative retries", func(c *Config) { c.Retries = -1 }, true},
		{"invalid timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"invalid samples per shard", func(c *Config) { c.SamplesPerShard = 0 }, true},
		{"invalid shard parallelism", func(c *Config) { c.ShardParallelism = 0 }, true},
		{"unknown hash", func(c *Config) { c.ComputeHash = "crc32" }, true},
		{"unknown format", func(c *Config) { c.OutputFormat = "tfrecord" }, true},
		{"unknown compression", func(c *Config) { c.Compression = "gzip" }, true},
		{"unknown resize mode", func(c *Config) { c.Resize.Mode = "stretch" }, true},
		{"unknown encode format", func(c *Config) { c.Resize.EncodeFormat = "bmp" }, true},
		{"same bucket, separate prefixes", func(c *Config) {
			c.OutputBucket = c.InputBucket
			c.InputPrefix = "in/"
			c.OutputPrefix = "out/"
		}, false},
		{"same bucket and prefix", func(c *Config) {
			c.OutputBucket = c.InputBucket
			c.InputPrefix = "data/"
			c.OutputPrefix = "data/"
		}, true},
		{"output nested under input", func(c *Config) {
			c.OutputBucket = c.InputBucket
			c.InputPrefix = "data/"
			c.OutputPrefix = "data/out/"
		}, true},
		{"same bucket without prefixes", func(c *Config) { c.OutputBucket = c.InputBucket }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.InputBucket = "s3://in"
	base.OutputBucket = "s3://out"

	override := Config{
		ThreadCount: 32,
		KeepSource:  true,
	}

	merged := base.Merge(override)

	if merged.InputBucket != "s3://in" {
		t.Errorf("expected InputBucket preserved, got %s", merged.InputBucket)
	}
	if merged.Timeout != 10*time.Second {
		t.Errorf("expected Timeout preserved, got %v", merged.Timeout)
	}
	if !merged.ExtractExif {
		t.Error("expected ExtractExif preserved")
	}

	if merged.ThreadCount != 32 {
		t.Errorf("expected ThreadCount overridden to 32, got %d", merged.ThreadCount)
	}
	if !merged.KeepSource {
		t.Error("expected KeepSource overridden to true")
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
