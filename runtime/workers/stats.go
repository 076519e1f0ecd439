package workers

import (
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Counter is anything that can tell how many entries it holds.
type Counter interface {
	Count() int
}

// Stats is one sample of the relay's load.
type Stats struct {
	Users      int
	Chats      int
	RSS        uint64
	CPUPercent float64
	Threads    int32
	Goroutines int
	SampledAt  time.Time
}

// StatsWorker periodically samples the process and the registries,
// publishes the result as gauges and logs it.
type StatsWorker struct {
	mu       sync.RWMutex
	log      *slog.Logger
	users    Counter
	chats    Counter
	metrics  *observability.Metrics
	interval time.Duration
	latest   Stats
	now      func() time.Time
}

func NewStatsWorker(log *slog.Logger, users, chats Counter,
	metrics *observability.Metrics, interval time.Duration) *StatsWorker {
	return &StatsWorker{
		log:      log,
		users:    users,
		chats:    chats,
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
	}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("inspect own process: %w", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats sampling")
			return nil
		case <-ticker.C:
			stats := w.Sample(p)
			w.log.Info("Relay stats",
				"users", stats.Users,
				"chats", stats.Chats,
				"rss", stats.RSS,
				"cpu", fmt.Sprintf("%.1f%%", stats.CPUPercent),
				"goroutines", stats.Goroutines)
		}
	}
}

// Sample reads the current load, updates the gauges and remembers the result.
// A nil process skips the OS figures.
func (w *StatsWorker) Sample(p *process.Process) Stats {
	stats := Stats{
		Users:      w.users.Count(),
		Chats:      w.chats.Count(),
		Goroutines: goruntime.NumGoroutine(),
		SampledAt:  w.now(),
	}
	if p != nil {
		rss, cpu, threads, err := selfStats(p)
		if err != nil {
			w.log.Error("Failed to collect self stats", "error", err)
		} else {
			stats.RSS, stats.CPUPercent, stats.Threads = rss, cpu, threads
		}
	}

	w.metrics.UsersActive.Set(float64(stats.Users))
	w.metrics.ChatsTotal.Set(float64(stats.Chats))
	w.metrics.ProcessRSS.Set(float64(stats.RSS))
	w.metrics.ProcessCPU.Set(stats.CPUPercent)

	w.mu.Lock()
	w.latest = stats
	w.mu.Unlock()
	return stats
}

// Latest returns the last sample, or the zero value before the first tick.
func (w *StatsWorker) Latest() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

func selfStats(p *process.Process) (uint64, float64, int32, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, 0, err
	}
	threads, err := p.NumThreads()
	if err != nil {
		return 0, 0, 0, err
	}
	return memInfo.RSS, cpuPercent, threads, nil
}
