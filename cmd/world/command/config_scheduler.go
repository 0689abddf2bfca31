package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/maintenance"
	"github.com/pixil98/go-world/internal/scheduler"
	"github.com/pixil98/go-world/internal/server"
)

type SchedulerConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	ShutdownGrace string `json:"shutdown_grace"`
}

func (c *SchedulerConfig) validate() error {
	el := errors.NewErrorList()

	if c.Workers < 0 {
		el.Add(fmt.Errorf("workers must not be negative"))
	}
	if c.QueueSize < 0 {
		el.Add(fmt.Errorf("queue_size must not be negative"))
	}
	if _, err := optionalDuration(c.ShutdownGrace); err != nil {
		el.Add(fmt.Errorf("parsing shutdown_grace: %w", err))
	}

	return el.Err()
}

func (c *SchedulerConfig) shutdownGrace() time.Duration {
	d, _ := optionalDuration(c.ShutdownGrace)
	if d == 0 {
		return server.DefaultShutdownGrace
	}
	return d
}

func (c *SchedulerConfig) buildScheduler(tick time.Duration, obs scheduler.Observer) *scheduler.Scheduler {
	opts := []scheduler.SchedulerOpt{
		scheduler.WithTickLength(tick),
		scheduler.WithObserver(obs),
	}
	if c.Workers > 0 {
		opts = append(opts, scheduler.WithWorkers(c.Workers))
	}
	if c.QueueSize > 0 {
		opts = append(opts, scheduler.WithQueueSize(c.QueueSize))
	}
	return scheduler.New(opts...)
}

type MaintenanceConfig struct {
	SavePeriod  string `json:"save_period"`
	CleanPeriod string `json:"clean_period"`
	// MemoryLimitMB is the heap size above which the clean task evicts the
	// whole cache and compacts the world. Zero disables the check.
	MemoryLimitMB uint64 `json:"memory_limit_mb"`
}

func (c *MaintenanceConfig) validate() error {
	el := errors.NewErrorList()

	if _, err := optionalDuration(c.SavePeriod); err != nil {
		el.Add(fmt.Errorf("parsing save_period: %w", err))
	}
	if _, err := optionalDuration(c.CleanPeriod); err != nil {
		el.Add(fmt.Errorf("parsing clean_period: %w", err))
	}

	return el.Err()
}

func (c *MaintenanceConfig) maintenanceConfig() maintenance.Config {
	save, _ := optionalDuration(c.SavePeriod)
	clean, _ := optionalDuration(c.CleanPeriod)
	return maintenance.Config{
		SavePeriod:  save,
		CleanPeriod: clean,
		MemoryLimit: c.MemoryLimitMB << 20,
	}
}
