package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway/internal/service"
)

const sweepTimeout = 5 * time.Minute

// Flusher is the part of the session manager the sweep drives.
type Flusher interface {
	FlushInactive(ctx context.Context, minAge time.Duration) service.FlushResult
}

// SweepJob periodically terminates sessions that are not connected. Sessions younger than
// one interval are skipped so a freshly issued QR code gets a full interval to be scanned.
type SweepJob struct {
	flusher  Flusher
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweepJob(flusher Flusher, interval time.Duration) *SweepJob {
	return &SweepJob{
		flusher:  flusher,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("inactive session sweep started")
}

// Stop waits for an in-flight sweep to finish.
func (j *SweepJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("inactive session sweep stopped")
	})
}

func (j *SweepJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	result := j.flusher.FlushInactive(ctx, j.interval)
	if result.Failed > 0 {
		log.Warn().
			Int("total", result.Total).
			Int("terminated", result.Terminated).
			Int("failed", result.Failed).
			Msg("inactive session sweep finished with failures")
	} else if result.Terminated > 0 {
		log.Info().Int("terminated", result.Terminated).Msg("swept inactive sessions")
	}
}
