package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config controls firing and retry behaviour
type Config struct {
	// RetryInterval is the delay before a failed action is attempted again.
	RetryInterval time.Duration
	// StartupGrace is the minimum delay for entries re-armed by Start, so the
	// connection has time to settle before anything fires.
	StartupGrace time.Duration
	// RetryLimit caps consecutive failed attempts. Zero retries until the action succeeds.
	// An entry that hits the limit stays stored and is re-armed on the next Start.
	RetryLimit int
}

// DefaultConfig retries every 10 seconds forever and defers startup firings by 15 seconds
func DefaultConfig() Config {
	return Config{
		RetryInterval: 10 * time.Second,
		StartupGrace:  15 * time.Second,
	}
}

// Scheduler arms a one-shot timer for every pending entry
type Scheduler struct {
	store   *Store
	actions Actions
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timers   map[*Entry]*time.Timer
	due      map[*Entry]time.Time
	attempts map[*Entry]int
	started  bool
	stopped  bool
}

// NewScheduler validates actions and returns an idle scheduler; call Start to arm
// the entries already in store.
func NewScheduler(store *Store, actions Actions, cfg Config, log zerolog.Logger) (*Scheduler, error) {
	if err := actions.Validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.StartupGrace < 0 {
		cfg.StartupGrace = 0
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		actions:  actions,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[*Entry]*time.Timer),
		due:      make(map[*Entry]time.Time),
		attempts: make(map[*Entry]int),
	}, nil
}

// Start arms every stored entry. Entries due within StartupGrace (or already
// overdue) are deferred to now+StartupGrace.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	now := s.now()
	earliest := now.Add(s.cfg.StartupGrace)
	for _, e := range s.store.Entries() {
		if !e.Action.Valid() {
			s.log.Error().Str("id", e.ID).Str("action", string(e.Action)).Msg("Skipping stored timer with unknown action")
			continue
		}
		at := e.FireAt
		if at.Before(earliest) {
			at = earliest
		}
		s.arm(e, at)
	}
	s.log.Info().Int("count", s.store.Len()).Msg("Timers armed")
}

// Schedule stores a new entry and arms it for fireAt
func (s *Scheduler) Schedule(ctx context.Context, fireAt time.Time, kind Kind, target, channel string) (*Entry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}

	e := &Entry{
		ID:      uuid.NewString(),
		FireAt:  fireAt.UTC(),
		Action:  kind,
		Target:  target,
		Channel: channel,
	}
	if err := s.store.Add(ctx, e); err != nil {
		return nil, err
	}
	s.arm(e, e.FireAt)

	s.log.Debug().Str("id", e.ID).Str("action", string(kind)).Str("target", target).
		Str("channel", channel).Time("fire_at", e.FireAt).Msg("Timer scheduled")
	return e, nil
}

// Cancel disarms e and removes it from the store
func (s *Scheduler) Cancel(ctx context.Context, e *Entry) error {
	s.disarm(e)
	_, err := s.store.Remove(ctx, e)
	return err
}

// Pending returns a copy of every stored entry in order
func (s *Scheduler) Pending() []Entry {
	return s.store.Snapshot()
}

// Due returns the time e is currently armed for
func (s *Scheduler) Due(e *Entry) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.due[e]
	return at, ok
}

// Attempts returns how many times e has been fired so far
func (s *Scheduler) Attempts(e *Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[e]
}

// Stop disarms all timers and waits for in-flight actions to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for e, t := range s.timers {
		t.Stop()
		delete(s.timers, e)
		delete(s.due, e)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) arm(e *Entry, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[e]; ok {
		t.Stop()
	}
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.due[e] = at
	s.timers[e] = time.AfterFunc(delay, func() { s.fire(e) })
}

func (s *Scheduler) disarm(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[e]; ok {
		t.Stop()
	}
	delete(s.timers, e)
	delete(s.due, e)
	delete(s.attempts, e)
}

func (s *Scheduler) fire(e *Entry) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, e)
	delete(s.due, e)
	s.attempts[e]++
	attempt := s.attempts[e]
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	// Cancelled while the timer was firing.
	if !s.store.Contains(e) {
		s.forget(e)
		return
	}

	log := s.log.With().Str("id", e.ID).Str("action", string(e.Action)).
		Str("target", e.Target).Str("channel", e.Channel).Int("attempt", attempt).Logger()

	if err := s.run(e); err != nil {
		if s.cfg.RetryLimit > 0 && attempt >= s.cfg.RetryLimit {
			log.Error().Err(err).Msg("Timer failed, retry limit reached; leaving it for the next start")
			return
		}
		log.Warn().Err(err).Dur("retry_in", s.cfg.RetryInterval).Msg("Timer failed, retrying")
		s.arm(e, s.now().Add(s.cfg.RetryInterval))
		return
	}

	if _, err := s.store.Remove(s.ctx, e); err != nil {
		// The action ran but the snapshot still holds it; try the whole thing again later.
		log.Error().Err(err).Msg("Timer fired but could not be removed")
		s.arm(e, s.now().Add(s.cfg.RetryInterval))
		return
	}
	s.forget(e)
	log.Info().Msg("Timer fired")
}

func (s *Scheduler) forget(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, e)
}

func (s *Scheduler) run(e *Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.actions[e.Action](s.ctx, e.Target, e.Channel)
}
