package journal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/metrics"
)

// Journal is a core.Journal owning background resources
type Journal interface {
	core.Journal

	// Stop stops background cleanup and releases the storage
	Stop()
}

const (
	backendMemory = "memory"
	backendSQLite = "sqlite"
	backendMySQL  = "mysql"
)

func observe(backend, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.JournalOperations.WithLabelValues(backend, operation, status).Inc()
}

// startCleanupTask periodically removes events past retention until stopCh closes
func startCleanupTask(j core.Journal, logger *zap.Logger, freq time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up journal", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}
