package internal

import (
	"context"
	"time"

	"k8s.io/klog/v2"
)

// DebugTimer logs the start of a stage at verbosity 1 and returns a func that logs its duration.
func DebugTimer(ctx context.Context, msg string) func() {
	logger := klog.FromContext(ctx).V(1)
	start := time.Now()
	logger.Info("start", "stage", msg)
	return func() {
		logger.Info("done", "stage", msg, "elapsed", time.Since(start))
	}
}
