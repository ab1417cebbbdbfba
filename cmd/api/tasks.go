package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kisan-choice-api/internal/scheduler"
)

const (
	taskReaper   = "price-lock-reaper"
	taskDelivery = "delivery-sweep"
)

// tasks registers the recurring jobs on r.
func (a *app) tasks(r *scheduler.Runner) {
	r.Add(scheduler.Task{
		Name:     taskReaper,
		Interval: a.cfg.Scheduler.ReaperInterval.Duration,
		Run: func(ctx context.Context, now time.Time) error {
			// the service logs what was reaped
			_, err := a.svc.ReapExpiredPriceLocks(ctx, now)
			return err
		},
	})
	r.Add(scheduler.Task{
		Name:     taskDelivery,
		Interval: a.cfg.Scheduler.DeliveryInterval.Duration,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := a.svc.SweepDeliveries(ctx, now, a.cfg.Scheduler.DeliverAfter.Duration)
			return err
		},
	})
}

func runTask(cmd *cobra.Command, configPath, name string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	r := scheduler.NewRunner(a.logger, nil)
	a.tasks(r)
	return r.RunOnce(ctx, name)
}

func reapCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one pass of the expired price-lock reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, *configPath, taskReaper)
		},
	}
}

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-deliveries",
		Short: "Mark long-shipped orders as delivered",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, *configPath, taskDelivery)
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.Database.Driver)
			return nil
		},
	}
}
