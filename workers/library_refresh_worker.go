// workers/library_refresh_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"game-library-system/services"

	"github.com/go-co-op/gocron/v2"
)

// LibraryRefreshWorker periodically re-syncs titles and achievements for
// every user with at least one linked provider account, using their stored
// credentials. Per-user failures are logged and skipped — one broken refresh
// token must not stall the sweep.
type LibraryRefreshWorker struct {
	store    services.AggregateStore
	sync     *services.SyncService
	interval time.Duration
	sched    gocron.Scheduler
}

func NewLibraryRefreshWorker(store services.AggregateStore, syncService *services.SyncService, interval time.Duration) *LibraryRefreshWorker {
	return &LibraryRefreshWorker{
		store:    store,
		sync:     syncService,
		interval: interval,
	}
}

func (w *LibraryRefreshWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	w.sched = sched

	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.sweep(ctx) }),
	)
	if err != nil {
		return err
	}

	sched.Start()
	log.Printf("🔁 Library refresh worker started (every %s)", w.interval)
	return nil
}

func (w *LibraryRefreshWorker) Stop() {
	if w.sched != nil {
		if err := w.sched.Shutdown(); err != nil {
			log.Printf("[REFRESH] ⚠️ scheduler shutdown: %v", err)
		}
	}
}

func (w *LibraryRefreshWorker) sweep(ctx context.Context) {
	users, err := w.store.UsersWithLinkedAccounts(ctx)
	if err != nil {
		log.Printf("[REFRESH] ❌ listing users with linked accounts: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	log.Printf("[REFRESH] 📡 sweeping %d user(s)", len(users))
	var refreshed, failed int
	for _, user := range users {
		providers := make([]string, 0, len(user.LinkedAccounts))
		for name := range user.LinkedAccounts {
			providers = append(providers, name)
		}

		userCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		n, err := w.sync.RefreshTitles(userCtx, user.ID, providers)
		cancel()
		if err != nil {
			failed++
			log.Printf("[REFRESH] ⚠️ user %s refresh failed: %v", user.ID, err)
			continue
		}
		refreshed += n
	}
	log.Printf("[REFRESH] ✅ sweep done: %d titles refreshed, %d user(s) failed", refreshed, failed)
}
