package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-world/internal/scheduler"
)

type fakeWorld struct {
	saves      atomic.Int64
	failOn     int64
	compacts   int
	compactErr error
}

func (w *fakeWorld) SaveAll(context.Context) error {
	n := w.saves.Add(1)
	if n == w.failOn {
		return errors.New("disk on fire")
	}
	return nil
}

func (w *fakeWorld) Compact(context.Context) error {
	w.compacts++
	return w.compactErr
}

type fakeCache struct {
	soft  int
	force int
}

func (c *fakeCache) Evict(force bool) int {
	if force {
		c.force++
		return 5
	}
	c.soft++
	return 1
}

type scheduled struct {
	name   string
	delay  uint64
	period uint64
	opts   int
	handle *scheduler.Handle
}

type fakeScheduler struct {
	tasks  []scheduled
	failOn string
}

func (s *fakeScheduler) Schedule(name string, _ scheduler.Action, delay, period uint64, opts ...scheduler.TaskOpt) (*scheduler.Handle, error) {
	if name == s.failOn {
		return nil, scheduler.ErrShutdown
	}
	h := &scheduler.Handle{}
	s.tasks = append(s.tasks, scheduled{name: name, delay: delay, period: period, opts: len(opts), handle: h})
	return h, nil
}

func (s *fakeScheduler) TickLength() time.Duration {
	return 600 * time.Millisecond
}

func TestCleanTask_Run(t *testing.T) {
	tests := map[string]struct {
		limit       uint64
		heap        uint64
		compactErr  error
		expForce    int
		expCompacts int
		expFreed    int
		expErr      string
	}{
		"below limit": {
			limit: 1000,
			heap:  10,
		},
		"no limit": {
			heap: 1 << 40,
		},
		"above limit": {
			limit:       1000,
			heap:        2000,
			expForce:    1,
			expCompacts: 1,
			expFreed:    1,
		},
		"compact fails": {
			limit:       1000,
			heap:        2000,
			compactErr:  errors.New("stuck"),
			expForce:    1,
			expCompacts: 1,
			expErr:      "compacting world: stuck",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := &fakeWorld{compactErr: tt.compactErr}
			cache := &fakeCache{}
			task := NewCleanTask(w, cache, tt.limit)

			gcs, freed := 0, 0
			task.heap = func() uint64 { return tt.heap }
			task.gc = func() { gcs++ }
			task.freeOS = func() { freed++ }

			err := task.Run(context.Background())
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			testutil.AssertEqual(t, "soft evictions", cache.soft, 1)
			testutil.AssertEqual(t, "gc", gcs, 1)
			testutil.AssertEqual(t, "forced evictions", cache.force, tt.expForce)
			testutil.AssertEqual(t, "compacts", w.compacts, tt.expCompacts)
			testutil.AssertEqual(t, "freed", freed, tt.expFreed)
		})
	}
}

func TestCleanTask_NoCache(t *testing.T) {
	task := NewCleanTask(&fakeWorld{}, nil, 1)
	task.heap = func() uint64 { return 2 }
	task.gc = func() {}
	task.freeOS = func() {}

	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSaveTask_Run(t *testing.T) {
	w := &fakeWorld{failOn: 2}
	task := NewSaveTask(w)

	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertErrorContains(t, task.Run(context.Background()), "saving world: disk on fire")
}

func TestRegister(t *testing.T) {
	tests := map[string]struct {
		cfg       Config
		failOn    string
		expSave   uint64
		expClean  uint64
		expErr    string
		expCancel bool
	}{
		"defaults": {
			expSave:  1500,
			expClean: 1000,
		},
		"custom periods": {
			cfg:      Config{SavePeriod: time.Minute, CleanPeriod: 30 * time.Second},
			expSave:  100,
			expClean: 50,
		},
		"clean not scheduled": {
			failOn:    "clean",
			expErr:    "scheduling clean task",
			expCancel: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := &fakeScheduler{failOn: tt.failOn}
			tasks, err := Register(s, tt.cfg, &fakeWorld{}, &fakeCache{})
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				testutil.AssertEqual(t, "save cancelled", s.tasks[0].handle.Cancelled(), tt.expCancel)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			save, clean := s.tasks[0], s.tasks[1]
			testutil.AssertEqual(t, "save name", save.name, "save")
			testutil.AssertEqual(t, "save delay", save.delay, tt.expSave)
			testutil.AssertEqual(t, "save period", save.period, tt.expSave)
			testutil.AssertEqual(t, "save on lane", save.opts, 1)
			testutil.AssertEqual(t, "clean delay", clean.delay, uint64(0))
			testutil.AssertEqual(t, "clean period", clean.period, tt.expClean)
			testutil.AssertEqual(t, "clean on lane", clean.opts, 1)
			testutil.AssertEqual(t, "handles", tasks.Save == save.handle && tasks.Clean == clean.handle, true)
		})
	}
}

func TestRegister_FailedRunKeepsSchedule(t *testing.T) {
	s := scheduler.New(scheduler.WithTickLength(time.Millisecond))
	defer func() { _ = s.Shutdown(time.Second) }()

	w := &fakeWorld{failOn: 3}
	tasks, err := Register(s, Config{SavePeriod: 2 * time.Millisecond, CleanPeriod: time.Hour}, w, &fakeCache{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for w.saves.Load() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d saves ran", w.saves.Load())
		}
		time.Sleep(time.Millisecond)
	}
	tasks.Cancel()

	testutil.AssertEqual(t, "failures", tasks.Save.Failures(), uint64(1))
}
