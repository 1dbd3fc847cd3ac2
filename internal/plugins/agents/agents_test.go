package agents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

var (
	gm    = tabletop.Actor{UserID: "u-gm", Name: "Mestre", Role: tabletop.RoleMaster}
	ana   = tabletop.Actor{UserID: "u-ana", Name: "Ana", Role: tabletop.RolePlayer}
	bruno = tabletop.Actor{UserID: "u-bruno", Name: "Bruno", Role: tabletop.RolePlayer}
)

// --- Mocks ---

// recordingSaver records every save.
type recordingSaver struct {
	mu    sync.Mutex
	saved []*Agent
	err   error
}

func (r *recordingSaver) save(_ context.Context, a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, a.Clone())
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func (r *recordingSaver) last() *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[len(r.saved)-1]
}

type mockSpawner struct {
	createFn func(ctx context.Context, actor tabletop.Actor, spec tabletop.TokenSpec) (*tabletop.Token, error)
}

func (m *mockSpawner) CreateToken(ctx context.Context, actor tabletop.Actor, spec tabletop.TokenSpec) (*tabletop.Token, error) {
	return m.createFn(ctx, actor, spec)
}

type mockDrafter struct {
	draftFn func(ctx context.Context, actor tabletop.Actor) (json.RawMessage, error)
}

func (m *mockDrafter) DraftCharacter(ctx context.Context, actor tabletop.Actor) (json.RawMessage, error) {
	return m.draftFn(ctx, actor)
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestService(t *testing.T, delay time.Duration, tokens TokenSpawner, drafter Drafter) (AgentService, docstore.Store) {
	t.Helper()
	store := docstore.NewMemoryStore()
	svc := NewAgentService(NewAgentRepository(store), delay, tokens, drafter)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, store
}

// --- Model ---

func TestNormalize_FillsMissingBlocks(t *testing.T) {
	a, err := Normalize(json.RawMessage(`{
		"id": "a1",
		"nome": "Ana",
		"obliquo": {"cabeca": {"dano": 3, "limite": 10, "lesao": "corte"}},
		"resistencias": {"fogo": 5}
	}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if a.Name != "Ana" || a.Class != ClassFighter || a.NEX != 5 {
		t.Errorf("unexpected identity fields: %+v", a)
	}
	if a.Oblique.Head.Damage != 3 || a.Oblique.Torso.Limit != 25 || a.Oblique.RightLeg.Limit != 15 {
		t.Errorf("oblique not merged with defaults: %+v", a.Oblique)
	}
	if a.Resistances.Fire != 5 || a.Resistances.Fear != 0 {
		t.Errorf("unexpected resistances: %+v", a.Resistances)
	}
	if a.Status.HPMax != 20 || a.Status.SanityMax != 12 || a.Status.EffortMax != 2 {
		t.Errorf("status defaults missing: %+v", a.Status)
	}
	if a.Skills == nil || a.Attacks == nil || a.Abilities == nil {
		t.Error("lists must never be nil")
	}
}

func TestRepository_LoadsOldSheetsWithDefaults(t *testing.T) {
	store := docstore.NewMemoryStore()
	_ = store.Upsert(context.Background(), docstore.CollectionAgents, "old", json.RawMessage(`{"id":"old","nome":"Velho","classe":"Ocultista"}`))

	a, err := NewAgentRepository(store).Get(context.Background(), "old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Oblique.Torso.Limit != 25 || a.Attributes.Vigor != 1 || a.Class != ClassOccultist {
		t.Errorf("defaults not applied on load: %+v", a)
	}
}

func TestClassColor(t *testing.T) {
	if ClassColor(ClassSpecialist) != "#3b82f6" || ClassColor(ClassOccultist) != "#a855f7" {
		t.Error("unexpected class colors")
	}
	if ClassColor("Bardo") != neutralColor {
		t.Error("unknown class should get the neutral color")
	}
}

func TestClone_IsDeep(t *testing.T) {
	a := NewDefaultAgent("a1")
	a.Skills = append(a.Skills, Skill{Name: "Luta"})
	b := a.Clone()
	b.Skills[0].Name = "Tiro"
	if a.Skills[0].Name != "Luta" {
		t.Error("clone shares the skills slice")
	}
}

// --- Autosaver ---

func TestAutosaver_DebouncesToLatestEdit(t *testing.T) {
	rec := &recordingSaver{}
	s := NewAutosaver(40*time.Millisecond, rec.save)
	ctx := context.Background()

	a := NewDefaultAgent("a1")
	for _, name := range []string{"A", "AB", "ABC"} {
		a.Name = name
		if err := s.Schedule(ctx, a); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	if p, ok := s.Pending("a1"); !ok || p.Name != "ABC" {
		t.Errorf("expected pending ABC, got %+v", p)
	}

	waitFor(t, func() bool { return rec.count() == 1 })
	time.Sleep(80 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("expected one save, got %d", rec.count())
	}
	if rec.last().Name != "ABC" {
		t.Errorf("saved %q, want ABC", rec.last().Name)
	}
	if _, ok := s.Pending("a1"); ok {
		t.Error("pending edit should be cleared after save")
	}
}

func TestAutosaver_FlushAndClose(t *testing.T) {
	rec := &recordingSaver{}
	s := NewAutosaver(time.Hour, rec.save)
	ctx := context.Background()

	_ = s.Schedule(ctx, NewDefaultAgent("a1"))
	_ = s.Schedule(ctx, NewDefaultAgent("a2"))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("expected two saves, got %d", rec.count())
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = s.Schedule(ctx, NewDefaultAgent("a3"))
	if rec.count() != 3 {
		t.Errorf("expected immediate save after close, got %d saves", rec.count())
	}
}

func TestAutosaver_CancelDropsEdit(t *testing.T) {
	rec := &recordingSaver{}
	s := NewAutosaver(20*time.Millisecond, rec.save)
	_ = s.Schedule(context.Background(), NewDefaultAgent("a1"))
	s.Cancel("a1")
	time.Sleep(60 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("cancelled edit was saved")
	}
}

func TestAutosaver_FlushReportsFailures(t *testing.T) {
	rec := &recordingSaver{err: errors.New("disk full")}
	s := NewAutosaver(time.Hour, rec.save)
	_ = s.Schedule(context.Background(), NewDefaultAgent("a1"))
	if err := s.Flush(context.Background()); err == nil {
		t.Error("expected flush error")
	}
}

// --- Service ---

func TestCreate_OwnershipAndValidation(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, nil, nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, ana, json.RawMessage(`{"nome":"<b>Ana</b>","classe":"Especialista","ownerId":"someone"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" || a.Name != "Ana" || a.OwnerID != ana.UserID {
		t.Errorf("unexpected agent %+v", a)
	}

	assigned, err := svc.Create(ctx, gm, json.RawMessage(`{"nome":"NPC","ownerId":"u-bruno"}`))
	if err != nil || assigned.OwnerID != "u-bruno" {
		t.Errorf("game master should assign owners, got %+v, %v", assigned, err)
	}

	blank, err := svc.Create(ctx, ana, nil)
	if err != nil || blank.Name != "AGENTE DESCONHECIDO" {
		t.Errorf("expected blank template, got %+v, %v", blank, err)
	}

	_, err = svc.Create(ctx, ana, json.RawMessage(`{"classe":"Bardo"}`))
	assertAppError(t, err, http.StatusUnprocessableEntity)

	_, err = svc.Create(ctx, ana, json.RawMessage(`{"imagem":"javascript:alert(1)"}`))
	assertAppError(t, err, http.StatusUnprocessableEntity)

	_, err = svc.Create(ctx, tabletop.Actor{}, nil)
	assertAppError(t, err, http.StatusForbidden)
}

func TestPatch_MergesAndAutosaves(t *testing.T) {
	svc, store := newTestService(t, time.Hour, nil, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, ana, json.RawMessage(`{"nome":"Ana"}`))

	if _, err := svc.Patch(ctx, ana, a.ID, json.RawMessage(`{"status":{"pvAtual":15}}`)); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	got, err := svc.Patch(ctx, ana, a.ID, json.RawMessage(`{"inventario":"Pistola"}`))
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if got.Status.HPCurrent != 15 || got.Status.HPMax != 20 || got.Inventory != "Pistola" {
		t.Errorf("edits not merged: %+v", got)
	}

	// Not written yet, but visible through the service.
	stored, _ := NewAgentRepository(store).Get(ctx, a.ID)
	if stored.Inventory != "" {
		t.Error("edit saved before the debounce delay")
	}
	if view, _ := svc.Get(ctx, a.ID); view.Inventory != "Pistola" {
		t.Error("pending edit not visible")
	}

	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stored, _ = NewAgentRepository(store).Get(ctx, a.ID)
	if stored.Inventory != "Pistola" || stored.Status.HPCurrent != 15 {
		t.Errorf("flush lost edits: %+v", stored)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, nil, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, ana, json.RawMessage(`{"nome":"Ana"}`))

	_, err := svc.Patch(ctx, bruno, a.ID, json.RawMessage(`{"nex":50}`))
	assertAppError(t, err, http.StatusForbidden)

	_, err = svc.Replace(ctx, bruno, a.ID, json.RawMessage(`{"nome":"X"}`))
	assertAppError(t, err, http.StatusForbidden)

	assertAppError(t, svc.Delete(ctx, bruno, a.ID), http.StatusForbidden)

	if _, err := svc.Patch(ctx, gm, a.ID, json.RawMessage(`{"nex":50}`)); err != nil {
		t.Errorf("game master should edit any sheet: %v", err)
	}
}

func TestReplace_KeepsIdentity(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, nil, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, ana, json.RawMessage(`{"nome":"Ana","nex":40}`))
	_, _ = svc.Patch(ctx, ana, a.ID, json.RawMessage(`{"nex":45}`))

	got, err := svc.Replace(ctx, ana, a.ID, json.RawMessage(`{"id":"other","ownerId":"u-bruno","nome":"Ana Clara"}`))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got.ID != a.ID || got.OwnerID != ana.UserID || got.NEX != 5 {
		t.Errorf("unexpected replaced sheet %+v", got)
	}

	// The pending patch must not resurface.
	_ = svc.Flush(ctx)
	if view, _ := svc.Get(ctx, a.ID); view.Name != "Ana Clara" {
		t.Errorf("pending edit overwrote replace: %+v", view)
	}
}

func TestDeleteByName(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, nil, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, gm, json.RawMessage(`{"nome":"Dante"}`))

	_, err := svc.DeleteByName(ctx, gm, "dan")
	assertAppError(t, err, http.StatusNotFound)

	deleted, err := svc.DeleteByName(ctx, gm, "  dANTE ")
	if err != nil {
		t.Fatalf("DeleteByName: %v", err)
	}
	if deleted.ID != a.ID {
		t.Errorf("deleted %q, want %q", deleted.ID, a.ID)
	}
	_, err = svc.Get(ctx, a.ID)
	assertAppError(t, err, http.StatusNotFound)
}

func TestDeleteByName_PrefersOwnSheet(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, nil, nil)
	ctx := context.Background()
	other, _ := svc.Create(ctx, bruno, json.RawMessage(`{"nome":"Dante"}`))
	own, _ := svc.Create(ctx, ana, json.RawMessage(`{"nome":"dante"}`))

	deleted, err := svc.DeleteByName(ctx, ana, "Dante")
	if err != nil {
		t.Fatalf("DeleteByName: %v", err)
	}
	if deleted.ID != own.ID {
		t.Errorf("deleted %q, want the caller's sheet %q", deleted.ID, own.ID)
	}
	if _, err := svc.Get(ctx, other.ID); err != nil {
		t.Errorf("other player's sheet was touched: %v", err)
	}

	_, err = svc.DeleteByName(ctx, ana, "Dante")
	assertAppError(t, err, http.StatusForbidden)
}

// blockingStore holds agent writes on release once armed.
type blockingStore struct {
	*docstore.MemoryStore
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	select {
	case <-b.armed:
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-b.release
	default:
	}
	return b.MemoryStore.Upsert(ctx, collection, id, data)
}

func TestDelete_WaitsForInFlightAutosave(t *testing.T) {
	store := &blockingStore{
		MemoryStore: docstore.NewMemoryStore(),
		armed:       make(chan struct{}),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	svc := NewAgentService(NewAgentRepository(store), 10*time.Millisecond, nil, nil)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	ctx := context.Background()

	a, err := svc.Create(ctx, ana, json.RawMessage(`{"nome":"Ana"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	close(store.armed)
	if _, err := svc.Patch(ctx, ana, a.ID, json.RawMessage(`{"nome":"Ana B"}`)); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	<-store.entered

	deleted := make(chan error, 1)
	go func() { deleted <- svc.Delete(ctx, ana, a.ID) }()

	select {
	case err := <-deleted:
		t.Fatalf("delete finished while a save was in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(store.release)
	if err := <-deleted; err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = svc.Get(ctx, a.ID)
	assertAppError(t, err, http.StatusNotFound)
}

func TestSpawnToken_UsesSheet(t *testing.T) {
	var got tabletop.TokenSpec
	spawner := &mockSpawner{createFn: func(_ context.Context, _ tabletop.Actor, spec tabletop.TokenSpec) (*tabletop.Token, error) {
		got = spec
		return &tabletop.Token{ID: "tok-1", Label: spec.Label, Color: spec.Color}, nil
	}}
	svc, _ := newTestService(t, time.Hour, spawner, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, gm, json.RawMessage(`{"nome":"kaiser","classe":"Ocultista","imagem":"https://example.com/k.png"}`))

	tok, err := svc.SpawnToken(ctx, gm, a.ID)
	if err != nil {
		t.Fatalf("SpawnToken: %v", err)
	}
	if tok.ID != "tok-1" || got.Label != "KAISER" || got.Color != "#a855f7" || got.Image != "https://example.com/k.png" {
		t.Errorf("unexpected spec %+v", got)
	}
}

func TestDraft(t *testing.T) {
	drafter := &mockDrafter{draftFn: func(context.Context, tabletop.Actor) (json.RawMessage, error) {
		return json.RawMessage(`{"nome":"Gerado","classe":"Especialista","nex":25}`), nil
	}}
	svc, _ := newTestService(t, time.Hour, nil, drafter)

	a, err := svc.Draft(context.Background(), ana)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if a.Name != "Gerado" || a.NEX != 25 || a.OwnerID != ana.UserID || a.Oblique.Head.Limit != 10 {
		t.Errorf("unexpected draft %+v", a)
	}

	noAssistant, _ := newTestService(t, time.Hour, nil, nil)
	_, err = noAssistant.Draft(context.Background(), ana)
	assertAppError(t, err, http.StatusServiceUnavailable)

	failing := &mockDrafter{draftFn: func(context.Context, tabletop.Actor) (json.RawMessage, error) {
		return nil, apperror.NewBadGateway("assistant unavailable", errors.New("quota"))
	}}
	svc, _ = newTestService(t, time.Hour, nil, failing)
	_, err = svc.Draft(context.Background(), ana)
	assertAppError(t, err, http.StatusBadGateway)
}
