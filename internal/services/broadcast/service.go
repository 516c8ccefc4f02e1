package broadcast

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"castbot/internal/eventbus"
	"castbot/pkg/logx"
	"castbot/pkg/tgui"
)

// previewRunes bounds the text kept in a job status.
const previewRunes = 80

type Config struct {
	StatusMax int
	StatusTTL time.Duration
}

// Request is one broadcast submission.
type Request struct {
	Text      string
	Initiator int64
	// OnFinish runs on the job goroutine once the job is done.
	OnFinish func(JobStatus)
}

type jobEntry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Service struct {
	cfg   Config
	disp  *Dispatcher
	dir   Directory
	lock  Lock
	bus   eventbus.Bus
	log   logx.Logger
	clock clockwork.Clock

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	current string
	last    string
	closed  bool

	statusMu sync.RWMutex
	status   map[string]*JobStatus
}

func NewService(cfg Config, disp *Dispatcher, dir Directory, lock Lock, bus eventbus.Bus, log logx.Logger, clock clockwork.Clock) *Service {
	if lock == nil {
		lock = NewMemoryLock()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		disp:      disp,
		dir:       dir,
		lock:      lock,
		bus:       bus,
		log:       log.With(logx.String("comp", "broadcast")),
		clock:     clock,
		runCtx:    ctx,
		runCancel: cancel,
		jobs:      map[string]*jobEntry{},
		status:    map[string]*JobStatus{},
	}
}

// Submit captures the recipient snapshot and starts the job in the background.
// Errors: ErrEmptyText, ErrBusy, ErrNoRecipients (nothing sent, store
// untouched) or a storage error from the snapshot read.
func (s *Service) Submit(ctx context.Context, req Request) (JobStatus, error) {
	if strings.TrimSpace(req.Text) == "" {
		return JobStatus{}, ErrEmptyText
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return JobStatus{}, ErrClosed
	}

	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			s.publish(eventbus.BroadcastFinished, eventbus.JobFinished{Result: "busy"})
		}
		return JobStatus{}, err
	}
	targets, err := s.dir.ListSubscribed(ctx)
	if err != nil {
		release()
		return JobStatus{}, err
	}
	if len(targets) == 0 {
		release()
		s.publish(eventbus.BroadcastFinished, eventbus.JobFinished{Result: "empty"})
		return JobStatus{}, ErrNoRecipients
	}

	now := s.clock.Now()
	st := &JobStatus{
		ID:        ulid.Make().String(),
		Initiator: req.Initiator,
		Preview:   tgui.Preview(req.Text, previewRunes),
		State:     StateRunning,
		Total:     len(targets),
		CreatedAt: now,
	}
	s.pruneStatus(now)
	s.statusMu.Lock()
	s.status[st.ID] = st
	snap := *st
	s.statusMu.Unlock()

	// Close may have run since the first check. The job joins wg under mu so
	// Close either waits for it or the job never starts.
	jobCtx, cancel := context.WithCancel(s.runCtx)
	entry := &jobEntry{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		release()
		s.statusMu.Lock()
		delete(s.status, st.ID)
		s.statusMu.Unlock()
		return JobStatus{}, ErrClosed
	}
	s.wg.Add(1)
	s.jobs[st.ID] = entry
	s.current = st.ID
	s.last = st.ID
	s.mu.Unlock()

	s.log.Info("broadcast job started", logx.String("job", st.ID), logx.Int64("initiator", req.Initiator), logx.Int("total", st.Total))
	s.publish(eventbus.BroadcastStarted, eventbus.JobStarted{JobID: st.ID, Initiator: req.Initiator, Recipients: st.Total})

	go func() {
		defer s.wg.Done()
		defer close(entry.done)
		defer cancel()
		defer release()
		s.run(jobCtx, st.ID, req, targets)
	}()
	return snap, nil
}

func (s *Service) run(ctx context.Context, id string, req Request, targets []int64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in broadcast job", logx.String("job", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			s.finish(id, Result{}, StateCancelled, "failed", req.OnFinish)
		}
	}()

	res, err := s.disp.Dispatch(ctx, req.Text, targets,
		WithJobID(id),
		WithProgress(func(_ int64, o Outcome) { s.markProgress(id, o) }),
	)
	if err != nil {
		s.log.Warn("broadcast job failed", logx.String("job", id), logx.Err(err))
		s.finish(id, res, StateCancelled, "failed", req.OnFinish)
		return
	}
	state, result := StateCompleted, "completed"
	if res.Skipped > 0 {
		state, result = StateCancelled, "cancelled"
	}
	s.finish(id, res, state, result, req.OnFinish)
}

func (s *Service) markProgress(id string, o Outcome) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	if st == nil {
		return
	}
	st.Done++
	switch o {
	case Delivered:
		st.Delivered++
	case Unreachable:
		st.Unreachable++
	case Transient:
		st.Transient++
	}
}

func (s *Service) finish(id string, res Result, state State, result string, onFinish func(JobStatus)) {
	s.statusMu.Lock()
	st := s.status[id]
	var snap JobStatus
	if st != nil {
		if res.Outcomes != nil {
			st.Delivered, st.Unreachable, st.Transient, st.Skipped = res.Delivered, res.Unreachable, res.Transient, res.Skipped
			st.Done = res.Delivered + res.Unreachable + res.Transient
		}
		st.State = state
		st.DoneAt = s.clock.Now()
		snap = *st
	}
	s.statusMu.Unlock()

	s.mu.Lock()
	delete(s.jobs, id)
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()

	s.log.Info("broadcast job finished",
		logx.String("job", id),
		logx.String("result", result),
		logx.Int("delivered", snap.Delivered),
		logx.Int("unreachable", snap.Unreachable),
		logx.Int("transient", snap.Transient),
		logx.Int("skipped", snap.Skipped),
	)
	s.publish(eventbus.BroadcastFinished, eventbus.JobFinished{
		JobID:       id,
		Result:      result,
		Delivered:   snap.Delivered,
		Unreachable: snap.Unreachable,
		Transient:   snap.Transient,
		Skipped:     snap.Skipped,
		Took:        res.Took,
	})
	if onFinish != nil {
		onFinish(snap)
	}
}

// Run submits and waits for the job to finish (CLI).
func (s *Service) Run(ctx context.Context, req Request) (JobStatus, error) {
	st, err := s.Submit(ctx, req)
	if err != nil {
		return st, err
	}
	return s.Wait(ctx, st.ID)
}

// Wait blocks until job id is done. If ctx ends first the job is cancelled
// and Wait still returns its final status.
func (s *Service) Wait(ctx context.Context, id string) (JobStatus, error) {
	s.mu.Lock()
	entry := s.jobs[id]
	s.mu.Unlock()
	if entry != nil {
		select {
		case <-entry.done:
		case <-ctx.Done():
			entry.cancel()
			<-entry.done
		}
	}
	st, ok := s.Status(id)
	if !ok {
		return JobStatus{}, errors.New("unknown broadcast job: " + id)
	}
	return st, nil
}

// Cancel stops issuing new sends for job id. It reports whether the job was running.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	entry := s.jobs[id]
	s.mu.Unlock()
	if entry == nil {
		return false
	}
	s.log.Info("broadcast job cancel requested", logx.String("job", id))
	entry.cancel()
	return true
}

// CancelCurrent cancels the running job, if any, and returns its id.
func (s *Service) CancelCurrent() (string, bool) {
	s.mu.Lock()
	id := s.current
	s.mu.Unlock()
	if id == "" {
		return "", false
	}
	return id, s.Cancel(id)
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok || st == nil {
		return JobStatus{}, false
	}
	return *st, true
}

// Last returns the most recently submitted job.
func (s *Service) Last() (JobStatus, bool) {
	s.mu.Lock()
	id := s.last
	s.mu.Unlock()
	if id == "" {
		return JobStatus{}, false
	}
	return s.Status(id)
}

// Prune drops old job statuses; the housekeeping sweep calls it.
func (s *Service) Prune() int {
	s.statusMu.RLock()
	before := len(s.status)
	s.statusMu.RUnlock()
	s.pruneStatus(s.clock.Now())
	s.statusMu.RLock()
	after := len(s.status)
	s.statusMu.RUnlock()
	return before - after
}

// Close cancels running jobs and waits for them to record their outcome.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.runCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: data})
}
