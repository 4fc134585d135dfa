package scheduler

import (
	"context"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
)

type Task func(ctx context.Context) error

// Every runs task now and then on every tick until ctx is done.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	t := time.NewTicker(interval)
	defer t.Stop()

	go runTask(ctx, name, task)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runTask(ctx, name, task)
		}
	}
}

// Cron runs task on a standard five-field cron spec (or a descriptor such as
// "@daily") until ctx is done. Overlapping firings are skipped.
func Cron(ctx context.Context, spec, name string, task Task) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { runTask(ctx, name, task) }); err != nil {
		return err
	}
	c.Start()
	log.Info().Str("component", "scheduler").Str("task", name).Str("spec", spec).Msg("cron scheduled")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func runTask(ctx context.Context, name string, task Task) {
	if err := task(ctx); err != nil {
		log.Error().Str("component", "scheduler").Str("task", name).Err(err).Msg("task failed")
	}
}
