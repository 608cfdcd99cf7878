package app

import (
	"context"
	"time"
)

// queueDrainGrace is how long in-flight agent runs get before their
// containers are force-terminated.
const queueDrainGrace = 10 * time.Second

// Shutdown stops all components. Inbound surfaces go first so no new
// work arrives while the queue drains.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	a.logger.Info("shutting down")
	a.cancel()

	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.Error("failed to stop admin api", err)
		}
		cancel()
	}

	if a.transport != nil {
		if err := a.transport.Stop(); err != nil {
			a.logger.Error("failed to stop telegram connector", err)
		}
	}

	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.router != nil {
		a.router.Stop()
	}

	if a.queue != nil {
		a.queue.Shutdown(queueDrainGrace)
	}

	if a.runner != nil {
		if err := a.runner.Close(); err != nil {
			a.logger.Error("failed to close container runner", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close store", err)
		}
	}

	a.started = false
	a.logger.Info("shutdown complete")
	return nil
}
