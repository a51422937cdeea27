package timeframe

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/coinpulse/pkg/logger"
)

// ResetSignal is delivered to subscribers when a window boundary elapses.
// Initial signals carry only the scheduled time: they are sent immediately on
// subscription so a late subscriber can render countdown state without
// waiting for the next boundary, and must not trigger a rebase.
type ResetSignal struct {
	Timeframe Timeframe `json:"timeframe"`
	FiredAt   time.Time `json:"fired_at"` // boundary that elapsed (zero when Initial)
	NextReset time.Time `json:"next_reset"`
	Initial   bool      `json:"initial"`
}

// ResetScheduler fires wall-clock aligned reset signals per timeframe
// ⭐ SSOT: 윈도우 리셋 타이밍은 이 스케줄러에서만
type ResetScheduler struct {
	timeframes []Timeframe
	logger     *logger.Logger
	now        func() time.Time

	mu     sync.RWMutex
	subs   map[int]map[int]chan ResetSignal // duration minutes -> sub id -> channel
	next   map[int]time.Time                // duration minutes -> next scheduled boundary
	subSeq int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewResetScheduler creates a scheduler for the given timeframes
func NewResetScheduler(tfs []Timeframe, log *logger.Logger) *ResetScheduler {
	s := &ResetScheduler{
		timeframes: tfs,
		logger:     log,
		now:        time.Now,
		subs:       make(map[int]map[int]chan ResetSignal),
		next:       make(map[int]time.Time),
		stopCh:     make(chan struct{}),
	}

	// Boundaries are deterministic from the clock, so the schedule is known
	// before Start; NextResetTime works immediately.
	for _, tf := range tfs {
		s.next[tf.DurationMinutes] = tf.NextReset(s.now())
		s.subs[tf.DurationMinutes] = make(map[int]chan ResetSignal)
	}

	return s
}

// Start launches one timer loop per timeframe
func (s *ResetScheduler) Start(ctx context.Context) {
	for _, tf := range s.timeframes {
		s.wg.Add(1)
		go s.run(ctx, tf)
	}

	s.logger.WithField("timeframes", len(s.timeframes)).Info("Reset scheduler started")
}

// Stop stops all timer loops
func (s *ResetScheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Reset scheduler stopped")
}

// Subscribe registers for reset signals of one timeframe. The returned
// subscription's channel immediately receives an initial signal carrying the
// currently scheduled boundary.
func (s *ResetScheduler) Subscribe(tf Timeframe) *ResetSubscription {
	ch := make(chan ResetSignal, 4)

	s.mu.Lock()
	s.subSeq++
	id := s.subSeq
	if _, ok := s.subs[tf.DurationMinutes]; !ok {
		// Timeframe the scheduler was not configured with: still usable for
		// countdown display, it just never fires.
		s.subs[tf.DurationMinutes] = make(map[int]chan ResetSignal)
		s.next[tf.DurationMinutes] = tf.NextReset(s.now())
	}
	s.subs[tf.DurationMinutes][id] = ch
	next := s.next[tf.DurationMinutes]
	s.mu.Unlock()

	// Initial state so late subscribers never miss the current schedule.
	ch <- ResetSignal{Timeframe: tf, NextReset: next, Initial: true}

	return &ResetSubscription{scheduler: s, tf: tf, id: id, ch: ch}
}

// NextResetTime returns the next scheduled boundary for a timeframe.
// ok is false when the timeframe is unknown to the scheduler.
func (s *ResetScheduler) NextResetTime(tf Timeframe) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next, ok := s.next[tf.DurationMinutes]
	return next, ok
}

// run is the timer loop for one timeframe. It reschedules after every fire
// instead of recursing, so cancellation is a single select case.
func (s *ResetScheduler) run(ctx context.Context, tf Timeframe) {
	defer s.wg.Done()

	s.mu.RLock()
	next := s.next[tf.DurationMinutes]
	s.mu.RUnlock()

	timer := time.NewTimer(s.delayUntil(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-timer.C:
			fired := next
			next = tf.NextReset(s.now())

			s.mu.Lock()
			s.next[tf.DurationMinutes] = next
			s.mu.Unlock()

			s.fire(tf, fired, next)
			timer.Reset(s.delayUntil(next))
		}
	}
}

// delayUntil clamps a boundary delay to zero so a clock that moved backward
// or forward across the boundary fires once and reschedules, never spins.
func (s *ResetScheduler) delayUntil(boundary time.Time) time.Duration {
	delay := boundary.Sub(s.now())
	if delay < 0 {
		return 0
	}
	return delay
}

// fire delivers a reset signal to every subscriber of one timeframe
func (s *ResetScheduler) fire(tf Timeframe, firedAt, next time.Time) {
	s.mu.RLock()
	channels := make([]chan ResetSignal, 0, len(s.subs[tf.DurationMinutes]))
	for _, ch := range s.subs[tf.DurationMinutes] {
		channels = append(channels, ch)
	}
	s.mu.RUnlock()

	sig := ResetSignal{Timeframe: tf, FiredAt: firedAt, NextReset: next}
	dropped := 0
	for _, ch := range channels {
		select {
		case ch <- sig:
		default:
			dropped++
		}
	}

	log := s.logger.WithFields(map[string]interface{}{
		"timeframe": tf.DisplayName,
		"fired_at":  firedAt,
		"next":      next,
	})
	if dropped > 0 {
		log.WithField("dropped", dropped).Warn("Reset signal dropped for slow subscribers")
	} else {
		log.Debug("Reset signal fired")
	}
}

func (s *ResetScheduler) unsubscribe(tf Timeframe, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.subs[tf.DurationMinutes]; ok {
		delete(m, id)
	}
}

// ResetSubscription is one subscriber's handle on reset signals
type ResetSubscription struct {
	scheduler *ResetScheduler
	tf        Timeframe
	id        int
	ch        chan ResetSignal

	cancelOnce sync.Once
}

// C returns the signal channel
func (r *ResetSubscription) C() <-chan ResetSignal {
	return r.ch
}

// Cancel removes the subscription. Safe to call more than once; sibling
// subscriptions are unaffected.
func (r *ResetSubscription) Cancel() {
	r.cancelOnce.Do(func() {
		r.scheduler.unsubscribe(r.tf, r.id)
	})
}
