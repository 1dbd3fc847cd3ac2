package agents

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// saveTimeout bounds a background save fired by the debounce timer.
const saveTimeout = 10 * time.Second

// SaveFunc persists one sheet.
type SaveFunc func(ctx context.Context, a *Agent) error

// Autosaver debounces sheet saves. Each Schedule call replaces the pending
// copy of that sheet and restarts its timer; the sheet is written once it
// has been idle for the configured delay. Saves are serialized, so a later
// edit is never overwritten by an earlier one.
type Autosaver struct {
	delay time.Duration
	save  SaveFunc

	saveMu sync.Mutex // held for the duration of every save

	mu      sync.Mutex
	pending map[string]*pendingSave
	seq     uint64
	closed  bool
}

type pendingSave struct {
	agent *Agent
	timer *time.Timer
	seq   uint64
}

// NewAutosaver creates an autosaver that writes through save.
func NewAutosaver(delay time.Duration, save SaveFunc) *Autosaver {
	if delay <= 0 {
		delay = time.Second
	}
	return &Autosaver{
		delay:   delay,
		save:    save,
		pending: make(map[string]*pendingSave),
	}
}

// Schedule queues a copy of a for saving after the idle delay. After Close
// the sheet is saved immediately.
func (s *Autosaver) Schedule(ctx context.Context, a *Agent) error {
	snapshot := a.Clone()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
		return s.save(ctx, snapshot)
	}
	s.seq++
	seq := s.seq
	if p, ok := s.pending[a.ID]; ok {
		p.timer.Stop()
	}
	s.pending[a.ID] = &pendingSave{
		agent: snapshot,
		seq:   seq,
		timer: time.AfterFunc(s.delay, func() { s.fire(a.ID, seq) }),
	}
	s.mu.Unlock()
	return nil
}

// Pending returns a copy of the unsaved edit of id, if any.
func (s *Autosaver) Pending(id string) (*Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil, false
	}
	return p.agent.Clone(), true
}

// Cancel drops the unsaved edit of id, used when the sheet is deleted.
func (s *Autosaver) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

// Supersede drops the unsaved edit of id and runs write while no save is in
// flight, so a debounced save that already started cannot land after it.
// Used for full replaces and deletes.
func (s *Autosaver) Supersede(ctx context.Context, id string, write func(ctx context.Context) error) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.Cancel(id)
	return write(ctx)
}

// Flush saves every pending edit now. All saves are attempted; the errors
// are joined.
func (s *Autosaver) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	batch := make([]*Agent, 0, len(s.pending))
	for id, p := range s.pending {
		p.timer.Stop()
		batch = append(batch, p.agent)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, a := range batch {
		if err := s.save(ctx, a); err != nil {
			slog.Warn("autosave flush failed",
				slog.String("agent_id", a.ID),
				slog.Any("error", err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending edits and switches to immediate saves.
func (s *Autosaver) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Flush(ctx)
}

// fire saves the edit of id if it is still the one the timer was set for.
func (s *Autosaver) fire(id string, seq uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || p.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.save(ctx, p.agent); err != nil {
		slog.Warn("autosave failed",
			slog.String("agent_id", id),
			slog.Any("error", err),
		)
	}
}
