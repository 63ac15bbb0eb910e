package contracts

import "context"

// BackgroundWorker is a loop owned by the process lifetime.
type BackgroundWorker interface {
	// Run blocks until ctx is cancelled.
	Run(ctx context.Context) error
}
