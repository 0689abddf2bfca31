package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/pixil98/go-world/internal/scheduler"
)

const (
	DefaultSavePeriod  = 15 * time.Minute
	DefaultCleanPeriod = 10 * time.Minute
)

type Saver interface {
	SaveAll(ctx context.Context) error
}

type Compactor interface {
	Compact(ctx context.Context) error
}

// World is the state the maintenance tasks act on.
type World interface {
	Saver
	Compactor
}

// Evicter drops cached entries that can be reloaded on demand.
type Evicter interface {
	Evict(force bool) int
}

type Scheduler interface {
	Schedule(name string, action scheduler.Action, delay, period uint64, opts ...scheduler.TaskOpt) (*scheduler.Handle, error)
	TickLength() time.Duration
}

type Config struct {
	SavePeriod  time.Duration
	CleanPeriod time.Duration
	// MemoryLimit is the heap size in bytes above which a clean also empties
	// the cache and returns memory to the OS. Zero disables forced cleans.
	MemoryLimit uint64
}

// SaveTask writes every started player to storage.
type SaveTask struct {
	world Saver
}

func NewSaveTask(w Saver) *SaveTask {
	return &SaveTask{world: w}
}

func (t *SaveTask) Run(ctx context.Context) error {
	start := time.Now()
	if err := t.world.SaveAll(ctx); err != nil {
		return fmt.Errorf("saving world: %w", err)
	}
	slog.DebugContext(ctx, "world saved", "elapsed", time.Since(start))
	return nil
}

// CleanTask reclaims memory. Every run evicts idle cache entries and
// collects garbage; a run that finds the heap above the limit also empties
// the cache, compacts the world and frees memory back to the OS.
type CleanTask struct {
	world Compactor
	cache Evicter
	limit uint64

	heap   func() uint64
	gc     func()
	freeOS func()
}

func NewCleanTask(w Compactor, cache Evicter, limit uint64) *CleanTask {
	return &CleanTask{
		world:  w,
		cache:  cache,
		limit:  limit,
		heap:   heapInUse,
		gc:     runtime.GC,
		freeOS: debug.FreeOSMemory,
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

func (t *CleanTask) Run(ctx context.Context) error {
	evicted := 0
	if t.cache != nil {
		evicted = t.cache.Evict(false)
	}
	t.gc()

	heap := t.heap()
	if t.limit == 0 || heap <= t.limit {
		slog.DebugContext(ctx, "memory cleaned", "evicted", evicted, "heap", heap)
		return nil
	}

	slog.WarnContext(ctx, "heap above limit, forcing clean", "heap", heap, "limit", t.limit)
	if t.cache != nil {
		evicted += t.cache.Evict(true)
	}
	if err := t.world.Compact(ctx); err != nil {
		return fmt.Errorf("compacting world: %w", err)
	}
	t.freeOS()

	slog.InfoContext(ctx, "forced memory clean", "evicted", evicted, "heap", t.heap())
	return nil
}

// Tasks holds the handles of the registered maintenance tasks.
type Tasks struct {
	Save  *scheduler.Handle
	Clean *scheduler.Handle
}

func (t *Tasks) Cancel() {
	t.Save.Cancel()
	t.Clean.Cancel()
}

// Register schedules both tasks on the serial lane so they never overlap a
// tick. The first save waits a full period; the first clean runs at once.
func Register(s Scheduler, cfg Config, w World, cache Evicter) (*Tasks, error) {
	if cfg.SavePeriod <= 0 {
		cfg.SavePeriod = DefaultSavePeriod
	}
	if cfg.CleanPeriod <= 0 {
		cfg.CleanPeriod = DefaultCleanPeriod
	}

	savePeriod := scheduler.TicksFor(cfg.SavePeriod, s.TickLength())
	save, err := s.Schedule("save", NewSaveTask(w).Run, savePeriod, savePeriod, scheduler.OnSerial())
	if err != nil {
		return nil, fmt.Errorf("scheduling save task: %w", err)
	}

	cleanPeriod := scheduler.TicksFor(cfg.CleanPeriod, s.TickLength())
	clean, err := s.Schedule("clean", NewCleanTask(w, cache, cfg.MemoryLimit).Run, 0, cleanPeriod, scheduler.OnSerial())
	if err != nil {
		save.Cancel()
		return nil, fmt.Errorf("scheduling clean task: %w", err)
	}

	return &Tasks{Save: save, Clean: clean}, nil
}
