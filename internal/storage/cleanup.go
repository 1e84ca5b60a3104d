package storage

import (
	"context"
	"time"

	"github.com/dgellow/mailrelay/internal/log"
)

// CleanupManager periodically removes expired sessions from a Sweeper
type CleanupManager struct {
	sweeper  Sweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper Sweeper, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting session cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop and waits for it to finish
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfoWithFields("cleanup", "Session cleanup manager stopped", nil)
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.sweeper.CleanupExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired sessions", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired sessions", map[string]any{
			"count": count,
		})
	}
}
