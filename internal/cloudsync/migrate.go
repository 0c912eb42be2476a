package cloudsync

import (
	"context"
	"fmt"

	"github.com/dukerupert/tally/internal/mirror"
	"github.com/dukerupert/tally/internal/model"
)

type MigrationResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// MigrateLocalToCloud pushes every locally cached task, gift, record and
// request as a new remote row. Nothing is deduplicated: running it twice
// uploads everything twice. Settings are not migrated.
func (c *Coordinator) MigrateLocalToCloud(ctx context.Context) MigrationResult {
	if c.remote == nil {
		return MigrationResult{Message: ErrDisabled.Error()}
	}

	count, err := c.migrate(ctx)
	if err != nil {
		c.logger.Error("migration failed", "uploaded", count, "error", err)
		return MigrationResult{Count: count, Message: err.Error()}
	}
	c.logger.Info("migration complete", "uploaded", count)
	return MigrationResult{Success: true, Count: count}
}

func (c *Coordinator) migrate(ctx context.Context) (int, error) {
	count := 0

	tasks, err := mirror.LoadList[model.Task](c.local, c.ns.Key("tasks"))
	if err != nil {
		return count, fmt.Errorf("load tasks: %w", err)
	}
	for _, t := range tasks {
		c.AddTask(ctx, t)
		count++
	}

	gifts, err := mirror.LoadList[model.Gift](c.local, c.ns.Key("gifts"))
	if err != nil {
		return count, fmt.Errorf("load gifts: %w", err)
	}
	for _, g := range gifts {
		c.AddGift(ctx, g)
		count++
	}

	records, err := mirror.LoadList[model.Record](c.local, c.ns.Key("records"))
	if err != nil {
		return count, fmt.Errorf("load records: %w", err)
	}
	for _, r := range records {
		c.AddRecord(ctx, r)
		count++
	}

	requests, err := mirror.LoadList[model.Request](c.local, c.ns.Key("requests"))
	if err != nil {
		return count, fmt.Errorf("load requests: %w", err)
	}
	for _, r := range requests {
		c.AddRequest(ctx, r)
		count++
	}

	return count, nil
}
