package scheduler

import (
	"context"
	"time"

	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/logger"
	"github.com/robfig/cron/v3"
)

// A Controller is an Iversion Of Control pattern used to init the scheduler package.
type Controller struct {
	Logger        logger.Logger
	Manager       *store.Manager
	Specification string
	// Grace is the minimum age of an orphaned blob before it is removed.
	Grace time.Duration
}

// Start lauches the scheduler asynchronously.
func Start(c Controller) (*cron.Cron, error) {
	cron := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	log := c.Logger.WithPrefix("[scheduler]")

	_, err := cron.AddFunc(c.Specification, func() {
		Sweep(context.Background(), c)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Janitor task registred (%s)", c.Specification)

	cron.Start()
	log.Info("Scheduler is running")
	return cron, nil
}

// Sweep removes the orphaned blobs of the store when its engine can leave some behind.
func Sweep(ctx context.Context, c Controller) {
	log := c.Logger.WithPrefix("[janitor]")

	s, err := c.Manager.Connect(ctx)
	if err != nil {
		log.Error(err)
		return
	}

	sweeper, ok := s.(store.Sweeper)
	if !ok {
		log.Debugf("Nothing to sweep on %s", s.Name())
		return
	}

	n, err := sweeper.Sweep(ctx, c.Grace)
	if err != nil {
		log.Error(err)
		return
	}

	if n > 0 {
		log.Infof("Removed %d orphaned blobs", n)
	}
}
