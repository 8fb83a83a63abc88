// Package jobs runs periodic maintenance against the store.
package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"quizio/store"
)

const (
	// Rooms with no activity for this long are ended.
	idleRoomAge = 24 * time.Hour
	// Ended rooms older than this are deleted outright.
	endedRoomAge = 48 * time.Hour
)

type Cleaner struct {
	store  store.Store
	logger *zap.Logger
	cron   *cron.Cron
}

func NewCleaner(st store.Store, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		store:  st,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start registers the cleanup jobs and begins the scheduler. Idle rooms are
// ended hourly; ended rooms are deleted once a day at 03:00.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc("@hourly", c.endIdleRooms); err != nil {
		return err
	}
	if _, err := c.cron.AddFunc("0 3 * * *", c.deleteEndedRooms); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

func (c *Cleaner) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *Cleaner) endIdleRooms() {
	ended, err := c.store.EndIdleRooms(idleRoomAge)
	if err != nil {
		c.logger.Error("failed to end idle rooms", zap.Error(err))
		return
	}
	if ended > 0 {
		c.logger.Info("ended idle rooms", zap.Int64("rooms", ended))
	}
}

func (c *Cleaner) deleteEndedRooms() {
	deleted, err := c.store.DeleteEndedRooms(endedRoomAge)
	if err != nil {
		c.logger.Error("failed to delete ended rooms", zap.Error(err))
		return
	}
	if deleted > 0 {
		c.logger.Info("deleted ended rooms", zap.Int64("rooms", deleted))
	}
}
