package tabletop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// Gesture is the pointer interaction state. Pan and drag are mutually
// exclusive within one gesture.
type Gesture int

const (
	GestureIdle Gesture = iota
	GesturePanning
	GestureDraggingToken
)

func (g Gesture) String() string {
	switch g {
	case GesturePanning:
		return "panning"
	case GestureDraggingToken:
		return "dragging_token"
	default:
		return "idle"
	}
}

// Config holds a table's policy settings.
type Config struct {
	// CampaignID is the singleton key of the shared view state.
	CampaignID string

	Viewport ViewportConfig

	// TokenSize and TokenColor are the defaults for ad-hoc tokens.
	TokenSize  float64
	TokenColor string

	// NewID generates token ids. Defaults to random UUIDs.
	NewID func() string

	// Now stamps revisions. Defaults to time.Now.
	Now func() time.Time
}

// Table is one viewer's session over the shared view state. It owns the
// viewer's local copy of the state, their viewport, selection and gesture,
// and runs the publish/pull protocol against a document store.
type Table struct {
	cfg       Config
	actor     Actor
	store     docstore.Store
	publisher *Publisher

	mu       sync.Mutex
	state    ViewState
	viewport Viewport
	selected string
	gesture  Gesture
	dragID   string
	pointer  Point
	pending  *ViewState
	pullSeq  uint64

	// committed is the last revision this table stamped for publishing.
	committed int64
}

// NewTable creates a session for actor. publisher may be shared between
// tables of the same campaign; nil creates a private one.
func NewTable(cfg Config, actor Actor, store docstore.Store, publisher *Publisher) *Table {
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TokenSize <= 0 {
		cfg.TokenSize = 40
	}
	if cfg.TokenColor == "" {
		cfg.TokenColor = "#ef4444"
	}
	if cfg.Viewport.MaxScale <= 0 {
		cfg.Viewport = DefaultViewportConfig
	}
	if publisher == nil {
		publisher = NewPublisher(store, cfg.CampaignID)
	}
	return &Table{
		cfg:       cfg,
		actor:     actor,
		store:     store,
		publisher: publisher,
		state:     ViewState{Tokens: []Token{}},
		viewport:  NewViewport(cfg.Viewport),
	}
}

// Actor returns the session's actor.
func (t *Table) Actor() Actor {
	return t.actor
}

// State returns a copy of the local view state.
func (t *Table) State() ViewState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Viewport returns a copy of the local viewport.
func (t *Table) Viewport() Viewport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewport
}

// Selected returns the selected token id, or "".
func (t *Table) Selected() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected
}

// Gesture returns the current interaction state.
func (t *Table) Gesture() Gesture {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gesture
}

// --- Viewport ---

// Pan moves the viewport by a screen-space delta.
func (t *Table) Pan(dx, dy float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewport.Pan(dx, dy)
}

// Zoom applies a wheel delta around pivot (screen space).
func (t *Table) Zoom(delta float64, pivot Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewport.Zoom(delta, pivot)
}

// ScreenToMap converts a screen point using the current viewport.
func (t *Table) ScreenToMap(p Point) Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewport.ScreenToMap(p)
}

// --- Pointer interaction ---

// PointerDown starts a gesture at screen point p. On a token it selects the
// token and starts dragging it; on empty canvas it starts panning and
// clears the selection. Returns the gesture that started.
func (t *Table) PointerDown(p Point) Gesture {
	t.mu.Lock()
	defer t.mu.Unlock()

	mp := t.viewport.ScreenToMap(p)
	for i := len(t.state.Tokens) - 1; i >= 0; i-- {
		if t.state.Tokens[i].Contains(mp) {
			t.beginDragLocked(t.state.Tokens[i].ID, p)
			return t.gesture
		}
	}
	t.gesture = GesturePanning
	t.pointer = p
	t.selected = ""
	t.dragID = ""
	return t.gesture
}

// PointerMove continues the current gesture.
func (t *Table) PointerMove(p Point) {
	t.mu.Lock()
	switch t.gesture {
	case GesturePanning:
		t.viewport.Pan(p.X-t.pointer.X, p.Y-t.pointer.Y)
		t.pointer = p
		t.mu.Unlock()
	case GestureDraggingToken:
		t.mu.Unlock()
		t.DragTo(p)
	default:
		t.mu.Unlock()
	}
}

// PointerUp ends the current gesture. Ending a drag may publish; its error
// is returned.
func (t *Table) PointerUp(ctx context.Context) error {
	t.mu.Lock()
	g := t.gesture
	if g == GesturePanning {
		t.gesture = GestureIdle
	}
	t.mu.Unlock()

	if g == GestureDraggingToken {
		return t.EndDrag(ctx)
	}
	return nil
}

// BeginDrag selects token id and starts dragging it from screen point p.
// Returns false when the token does not exist.
func (t *Table) BeginDrag(id string, p Point) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.indexOf(id) < 0 {
		return false
	}
	t.beginDragLocked(id, p)
	return true
}

func (t *Table) beginDragLocked(id string, p Point) {
	t.selected = id
	t.dragID = id
	t.pointer = p
	t.gesture = GestureDraggingToken
}

// DragTo moves the dragged token by the pointer delta since the last call,
// divided by the current scale so the token tracks the pointer 1:1 on
// screen. A token deleted mid-drag is silently ignored.
func (t *Table) DragTo(p Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gesture != GestureDraggingToken {
		return
	}
	dx := (p.X - t.pointer.X) / t.viewport.Scale
	dy := (p.Y - t.pointer.Y) / t.viewport.Scale
	t.pointer = p

	i := t.state.indexOf(t.dragID)
	if i < 0 {
		return
	}
	t.state.Tokens[i].X += dx
	t.state.Tokens[i].Y += dy
}

// EndDrag finishes a drag. Any view state pulled during the drag is applied
// now. For the game master the dragged token keeps its new position and the
// result is published; for players the pulled state wins.
func (t *Table) EndDrag(ctx context.Context) error {
	t.mu.Lock()
	if t.gesture != GestureDraggingToken {
		t.mu.Unlock()
		return nil
	}
	id := t.dragID
	t.gesture = GestureIdle
	t.dragID = ""

	dragged, exists := t.state.Token(id)
	privileged := CanPublishMap(t.actor)

	if t.pending != nil {
		pending := *t.pending
		t.pending = nil
		t.applyLocked(pending)
		if privileged && exists {
			if i := t.state.indexOf(id); i >= 0 {
				t.state.Tokens[i].X = dragged.X
				t.state.Tokens[i].Y = dragged.Y
			}
		}
	}

	if !privileged || !exists || t.state.indexOf(id) < 0 {
		t.mu.Unlock()
		return nil
	}
	snapshot := t.commitLocked()
	t.mu.Unlock()

	return t.publisher.Publish(ctx, snapshot)
}

// --- Token authoring ---

// CreateToken adds a token and publishes. Only the game master may create
// tokens. The token is kept locally even when the publish fails; the
// publish error is returned alongside it.
func (t *Table) CreateToken(ctx context.Context, spec TokenSpec) (Token, error) {
	if !CanPublishMap(t.actor) {
		return Token{}, ErrNotPrivileged
	}
	pos := DefaultPosition
	if spec.Position != nil {
		pos = *spec.Position
	}
	tok := Token{
		ID:    t.cfg.NewID(),
		Label: normalizeLabel(spec.Label),
		Image: spec.Image,
		X:     pos.X,
		Y:     pos.Y,
		Color: spec.Color,
		Size:  spec.Size,
	}
	if tok.Color == "" {
		tok.Color = t.cfg.TokenColor
	}
	if tok.Size <= 0 {
		tok.Size = t.cfg.TokenSize
	}

	t.mu.Lock()
	t.state.Tokens = append(t.state.Tokens, tok)
	snapshot := t.commitLocked()
	t.mu.Unlock()

	return tok, t.publisher.Publish(ctx, snapshot)
}

// CreateTokenAt creates a token centred on a screen point.
func (t *Table) CreateTokenAt(ctx context.Context, spec TokenSpec, screen Point) (Token, error) {
	mp := t.ScreenToMap(screen)
	spec.Position = &mp
	return t.CreateToken(ctx, spec)
}

// UpdateToken merges patch into the token with id and publishes. Returns
// false without error when no such token exists.
func (t *Table) UpdateToken(ctx context.Context, id string, patch TokenPatch) (bool, error) {
	if !CanPublishMap(t.actor) {
		return false, ErrNotPrivileged
	}
	t.mu.Lock()
	i := t.state.indexOf(id)
	if i < 0 {
		t.mu.Unlock()
		return false, nil
	}
	patch.apply(&t.state.Tokens[i])
	snapshot := t.commitLocked()
	t.mu.Unlock()

	return true, t.publisher.Publish(ctx, snapshot)
}

// DeleteToken removes the token with id, clears the selection if it was
// selected, and publishes. Returns false without error when no such token
// exists.
func (t *Table) DeleteToken(ctx context.Context, id string) (bool, error) {
	if !CanPublishMap(t.actor) {
		return false, ErrNotPrivileged
	}
	t.mu.Lock()
	i := t.state.indexOf(id)
	if i < 0 {
		t.mu.Unlock()
		return false, nil
	}
	t.state.Tokens = append(t.state.Tokens[:i], t.state.Tokens[i+1:]...)
	if t.selected == id {
		t.selected = ""
	}
	snapshot := t.commitLocked()
	t.mu.Unlock()

	return true, t.publisher.Publish(ctx, snapshot)
}

// SetBackground replaces the background image (nil clears it) and publishes.
func (t *Table) SetBackground(ctx context.Context, image *string) error {
	if !CanPublishMap(t.actor) {
		return ErrNotPrivileged
	}
	t.mu.Lock()
	if image != nil {
		bg := *image
		t.state.BackgroundImage = &bg
	} else {
		t.state.BackgroundImage = nil
	}
	snapshot := t.commitLocked()
	t.mu.Unlock()

	return t.publisher.Publish(ctx, snapshot)
}

// Reset empties the map, removing every token and the background, and
// publishes.
func (t *Table) Reset(ctx context.Context) error {
	if !CanPublishMap(t.actor) {
		return ErrNotPrivileged
	}
	t.mu.Lock()
	t.state.Tokens = []Token{}
	t.state.BackgroundImage = nil
	t.selected = ""
	snapshot := t.commitLocked()
	t.mu.Unlock()

	return t.publisher.Publish(ctx, snapshot)
}

// Publish writes the current local state. Only the game master may publish.
func (t *Table) Publish(ctx context.Context) error {
	if !CanPublishMap(t.actor) {
		return ErrNotPrivileged
	}
	t.mu.Lock()
	snapshot := t.commitLocked()
	t.mu.Unlock()
	return t.publisher.Publish(ctx, snapshot)
}

// commitLocked stamps a new revision and returns a snapshot to publish.
func (t *Table) commitLocked() ViewState {
	rev := t.cfg.Now().UnixMilli()
	if floor := max(t.state.Revision, t.publisher.Published()); rev <= floor {
		rev = floor + 1
	}
	t.state.Revision = rev
	t.committed = rev
	return t.state.Clone()
}

// --- Pull ---

// Pull fetches the shared view state and replaces the local tokens and
// background wholesale. While a drag is in progress the fetched state is
// held back and applied when the drag ends. A response that arrives after a
// newer pull was issued is discarded. On error the local state is kept.
//
// A game master whose last publish failed keeps the unpublished edit: an
// older shared state does not replace it, and the next publish sends it.
func (t *Table) Pull(ctx context.Context) error {
	t.mu.Lock()
	t.pullSeq++
	seq := t.pullSeq
	t.mu.Unlock()

	var fetched ViewState
	doc, err := t.store.Get(ctx, docstore.CollectionCampaignState, t.cfg.CampaignID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		// No campaign running: the table is empty.
		fetched = ViewState{Tokens: []Token{}}
	case err != nil:
		return fmt.Errorf("pulling view state: %w", err)
	default:
		if err := doc.Decode(&fetched); err != nil {
			return fmt.Errorf("pulling view state: %w", err)
		}
		if fetched.Tokens == nil {
			fetched.Tokens = []Token{}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.pullSeq {
		slog.Debug("discarding stale pull",
			slog.String("campaign_id", t.cfg.CampaignID),
			slog.Uint64("seq", seq),
			slog.Uint64("latest", t.pullSeq),
		)
		return nil
	}
	if t.unpublishedLocked() && fetched.Revision < t.committed {
		slog.Debug("keeping unpublished view state",
			slog.String("campaign_id", t.cfg.CampaignID),
			slog.Int64("local", t.state.Revision),
			slog.Int64("fetched", fetched.Revision),
		)
		return nil
	}
	if t.gesture == GestureDraggingToken {
		t.pending = &fetched
		return nil
	}
	t.applyLocked(fetched)
	return nil
}

// Unpublished reports whether the local state holds an edit the shared
// store has not accepted yet.
func (t *Table) Unpublished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unpublishedLocked()
}

// Discard drops an unpublished edit so the next Pull takes the shared state.
func (t *Table) Discard() {
	t.mu.Lock()
	t.committed = 0
	t.mu.Unlock()
}

func (t *Table) unpublishedLocked() bool {
	return CanPublishMap(t.actor) && t.committed > t.publisher.Published()
}

func (t *Table) applyLocked(v ViewState) {
	t.state = v.Clone()
	if t.selected != "" && t.state.indexOf(t.selected) < 0 {
		t.selected = ""
	}
}

// ErrNoSubscription is returned by Watch when the store cannot push changes;
// callers fall back to explicit Pull calls.
var ErrNoSubscription = errors.New("document store does not support subscriptions")

// Watch pulls every time the shared view state changes, until ctx is done.
// A dropped subscription is re-established with backoff.
func (t *Table) Watch(ctx context.Context) error {
	sub, ok := t.store.(docstore.Subscriber)
	if !ok {
		return ErrNoSubscription
	}

	backoff := 500 * time.Millisecond
	for {
		changes, cancel, err := sub.Subscribe(ctx, t.cfg.CampaignID)
		if err == nil {
			backoff = 500 * time.Millisecond
			// Catch up on anything written before the subscription existed.
			t.pullLogged(ctx)
			for change := range changes {
				if change.Collection != docstore.CollectionCampaignState {
					continue
				}
				t.pullLogged(ctx)
			}
			cancel()
		} else {
			slog.Warn("view state subscription failed",
				slog.String("campaign_id", t.cfg.CampaignID),
				slog.Any("error", err),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (t *Table) pullLogged(ctx context.Context) {
	if err := t.Pull(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("view state pull failed, keeping local state",
			slog.String("campaign_id", t.cfg.CampaignID),
			slog.Any("error", err),
		)
	}
}
