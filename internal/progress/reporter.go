package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalShards is the number of shards to process.
	TotalShards int

	// ThreadCount is the number of concurrent fetches per shard.
	ThreadCount int

	// Parallelism is the number of shards processed at once.
	Parallelism int

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source describes the input (for display).
	Source string
}

// Reporter outputs human-readable progress information. Its counters may
// be updated from any goroutine.
type Reporter struct {
	opts Options

	mu              sync.Mutex
	samples         atomic.Int64
	successes       atomic.Int64
	completedShards atomic.Int32
	failedShards    atomic.Int32
	inProgress      atomic.Int32
	startTime       time.Time
	lastUpdate      time.Time
	lastSamples     int64
	stopCh          chan struct{}
	doneCh          chan struct{}
	started         bool
	stopped         bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[shardfetch] Processing: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[shardfetch] Shards: %d | Parallel shards: %d | Threads per shard: %d\n",
		r.opts.TotalShards,
		r.opts.Parallelism,
		r.opts.ThreadCount,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// ShardStarted marks a shard as in progress.
func (r *Reporter) ShardStarted() {
	r.inProgress.Add(1)
}

// ShardDone marks a shard as finished.
func (r *Reporter) ShardDone(ok bool) {
	if ok {
		r.completedShards.Add(1)
	} else {
		r.failedShards.Add(1)
	}
	r.inProgress.Add(-1)
}

// SampleDone counts one processed sample.
func (r *Reporter) SampleDone(success bool) {
	r.samples.Add(1)
	if success {
		r.successes.Add(1)
	}
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	samples := r.samples.Load()
	done := int(r.completedShards.Load() + r.failedShards.Load())

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(samples-r.lastSamples) / elapsed

	r.lastUpdate = now
	r.lastSamples = samples

	var percent float64
	eta := "calculating..."
	if r.opts.TotalShards > 0 {
		percent = float64(done) / float64(r.opts.TotalShards) * 100
		if done > 0 {
			perShard := now.Sub(r.startTime) / time.Duration(done)
			eta = formatDuration(perShard * time.Duration(r.opts.TotalShards-done))
		}
	}

	fmt.Fprintf(r.opts.Output, "\r[shardfetch] Progress: %.1f%% | Samples: %d (%.1f%% ok) | Speed: %.1f samples/s | ETA: %s    ",
		percent,
		samples,
		successRate(r.successes.Load(), samples),
		speed,
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[shardfetch] Shards: %d completed | %d failed | %d in-progress    \033[A",
		r.completedShards.Load(),
		r.failedShards.Load(),
		r.inProgress.Load(),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	samples := r.samples.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(samples) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[shardfetch] Samples: %d (%.1f%% ok) | Complete!    \n",
		samples,
		successRate(r.successes.Load(), samples),
	)
	fmt.Fprintf(r.opts.Output, "[shardfetch] Shards: %d completed | %d failed    \n",
		r.completedShards.Load(),
		r.failedShards.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[shardfetch] Total time: %s | Average speed: %.1f samples/s\n",
		formatDuration(duration),
		avgSpeed,
	)
}

func successRate(successes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(successes) / float64(total) * 100
}

// formatBytes formats bytes as a human-readable IEC string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}

	value := float64(b)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB"}
	var suffix string
	for _, s := range suffixes {
		value /= unit
		suffix = s
		if value < unit {
			break
		}
	}

	if value >= 10 {
		return fmt.Sprintf("%.0f %s", value, suffix)
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string. IEC suffixes (KiB, MiB,
// GiB, TiB) are powers of 1024, SI suffixes (KB, MB, GB, TB) powers of
// 1000.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TiB", 1 << 40},
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
		{"TB", 1000 * 1000 * 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"MB", 1000 * 1000},
		{"KB", 1000},
		{"B", 1},
	}

	var multiplier int64 = 1
	num := s
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.multiplier
			num = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	var value float64
	if _, err := fmt.Sscanf(num, "%f", &value); err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}
