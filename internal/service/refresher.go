package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Refresher is the ranking operation the background loop runs.
type Refresher interface {
	RefreshRankings(ctx context.Context) (int, error)
}

// RankingRefresher re-materializes ranks on a fixed interval and whenever
// Trigger is called. Triggers arriving while a refresh is pending coalesce
// into one run.
type RankingRefresher struct {
	ranking  Refresher
	interval time.Duration
	timeout  time.Duration

	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRankingRefresher creates a refresher. A non-positive interval disables
// the ticker; Trigger still works.
func NewRankingRefresher(ranking Refresher, interval, timeout time.Duration) *RankingRefresher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RankingRefresher{
		ranking:  ranking,
		interval: interval,
		timeout:  timeout,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (r *RankingRefresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	r.wg.Add(1)
	go r.run()

	log.Info().Dur("interval", r.interval).Msg("Ranking refresher started")
}

// Stop ends the loop and waits for an in-flight refresh to finish.
func (r *RankingRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stop)
	r.wg.Wait()
	log.Info().Msg("Ranking refresher stopped")
}

// Trigger requests a refresh without blocking.
func (r *RankingRefresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *RankingRefresher) run() {
	defer r.wg.Done()

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.refresh()
	for {
		select {
		case <-tick:
			r.refresh()
		case <-r.trigger:
			r.refresh()
		case <-r.stop:
			return
		}
	}
}

func (r *RankingRefresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.ranking.RefreshRankings(ctx); err != nil {
		log.Error().Err(err).Msg("Ranking refresh failed")
	}
}
