package docstore_test

import (
	. "github.com/keyxmakerx/tabletop/internal/docstore"

	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/tabletop/internal/database"
)

// fakeRemote is a RemoteStore over a MemoryStore that can be switched to fail.
type fakeRemote struct {
	*MemoryStore
	fail   error
	closed bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{MemoryStore: NewMemoryStore()}
}

func (f *fakeRemote) Get(ctx context.Context, collection, id string) (*Document, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.MemoryStore.Get(ctx, collection, id)
}

func (f *fakeRemote) List(ctx context.Context, collection string) ([]Document, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.MemoryStore.List(ctx, collection)
}

func (f *fakeRemote) Upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	if f.fail != nil {
		return f.fail
	}
	return f.MemoryStore.Upsert(ctx, collection, id, data)
}

func (f *fakeRemote) Delete(ctx context.Context, collection, id string) error {
	if f.fail != nil {
		return f.fail
	}
	return f.MemoryStore.Delete(ctx, collection, id)
}

func (f *fakeRemote) Ping(context.Context) error { return f.fail }
func (f *fakeRemote) Close() error               { f.closed = true; return nil }

var errUnreachable = errors.New("connection refused")

func newOnlineService(t *testing.T) (*Service, *MemoryStore, *fakeRemote) {
	t.Helper()
	local := NewMemoryStore()
	remote := newFakeRemote()
	svc := NewService(local, nil, nil, ServiceConfig{MaxImageBytes: 16})
	svc.Attach(remote)
	return svc, local, remote
}

func TestService_UpsertWritesLocalThenRemote(t *testing.T) {
	svc, local, remote := newOnlineService(t)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, CollectionAgents, "a1", json.RawMessage(`{"nome":"Ana"}`)))

	_, err := local.Get(ctx, CollectionAgents, "a1")
	assert.NoError(t, err, "local cache should hold the document")
	_, err = remote.MemoryStore.Get(ctx, CollectionAgents, "a1")
	assert.NoError(t, err, "remote should hold the document")
}

func TestService_RemoteWriteFailureIsReturned(t *testing.T) {
	svc, local, remote := newOnlineService(t)
	ctx := context.Background()
	remote.fail = errUnreachable

	err := svc.Upsert(ctx, CollectionCampaignState, "current_campaign", json.RawMessage(`{"tokens":[]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOffline))
	assert.True(t, errors.Is(err, errUnreachable))

	// The local copy stays correct for the writer.
	_, err = local.Get(ctx, CollectionCampaignState, "current_campaign")
	assert.NoError(t, err)
}

func TestService_ReadFallsBackToLocalCache(t *testing.T) {
	svc, _, remote := newOnlineService(t)
	ctx := context.Background()
	require.NoError(t, svc.Upsert(ctx, CollectionAgents, "a1", json.RawMessage(`{"nome":"Ana"}`)))

	remote.fail = errUnreachable
	doc, err := svc.Get(ctx, CollectionAgents, "a1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"nome":"Ana"}`, string(doc.Data))

	docs, err := svc.List(ctx, CollectionAgents)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestService_RemoteReadRefreshesCache(t *testing.T) {
	svc, local, remote := newOnlineService(t)
	ctx := context.Background()
	require.NoError(t, remote.MemoryStore.Upsert(ctx, CollectionAgents, "a2", json.RawMessage(`{"nome":"Bia"}`)))

	_, err := svc.Get(ctx, CollectionAgents, "a2")
	require.NoError(t, err)

	doc, err := local.Get(ctx, CollectionAgents, "a2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"nome":"Bia"}`, string(doc.Data))
}

func TestService_RemoteNotFoundIsAuthoritative(t *testing.T) {
	svc, local, _ := newOnlineService(t)
	ctx := context.Background()
	require.NoError(t, local.Upsert(ctx, CollectionAgents, "stale", json.RawMessage(`{}`)))

	_, err := svc.Get(ctx, CollectionAgents, "stale")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestService_OfflineUsesLocalOnly(t *testing.T) {
	local := NewMemoryStore()
	svc := NewService(local, nil, nil, ServiceConfig{})
	ctx := context.Background()

	assert.False(t, svc.Online())
	require.NoError(t, svc.Upsert(ctx, CollectionAgents, "a1", json.RawMessage(`{"nome":"Ana"}`)))
	doc, err := svc.Get(ctx, CollectionAgents, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", doc.ID)
	assert.ErrorIs(t, svc.Ping(ctx), ErrOffline)
}

func TestService_ConnectLifecycle(t *testing.T) {
	remote := newFakeRemote()
	var gotDSN string
	connector := func(_ context.Context, cfg RemoteConfig) (RemoteStore, error) {
		gotDSN = cfg.DSN
		return remote, nil
	}
	svc := NewService(NewMemoryStore(), nil, connector, ServiceConfig{})
	ctx := context.Background()

	err := svc.Connect(ctx, RemoteConfig{DSN: "  "})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.False(t, svc.Online())

	require.NoError(t, svc.Connect(ctx, RemoteConfig{DSN: "user:pw@tcp(db:3306)/tt"}))
	assert.Equal(t, "user:pw@tcp(db:3306)/tt", gotDSN)
	assert.True(t, svc.Online())
	assert.NotNil(t, svc.Status().ConnectedAt)

	require.NoError(t, svc.Disconnect())
	assert.False(t, svc.Online())
	assert.True(t, remote.closed)
}

func TestService_ConnectFailureRecordsError(t *testing.T) {
	connector := func(context.Context, RemoteConfig) (RemoteStore, error) {
		return nil, errUnreachable
	}
	svc := NewService(NewMemoryStore(), nil, connector, ServiceConfig{})

	err := svc.Connect(context.Background(), RemoteConfig{DSN: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnreachable)
	assert.False(t, svc.Online())
	assert.Contains(t, svc.Status().LastError, "connection refused")
}

func TestService_QuotaStripsEmbeddedImages(t *testing.T) {
	db, err := database.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	local := NewSQLiteStore(db, 200)
	svc := NewService(local, nil, nil, ServiceConfig{MaxImageBytes: 32})
	ctx := context.Background()

	bigImage := "data:image/png;base64," + strings.Repeat("A", 400)
	payload, err := json.Marshal(map[string]any{
		"nome":   "Ana",
		"imagem": bigImage,
		"link":   "https://example.com/portrait.png",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Upsert(ctx, CollectionAgents, "a1", payload))

	doc, err := local.Get(ctx, CollectionAgents, "a1")
	require.NoError(t, err)
	var stored map[string]string
	require.NoError(t, json.Unmarshal(doc.Data, &stored))
	assert.Equal(t, "", stored["imagem"])
	assert.Equal(t, "Ana", stored["nome"])
	assert.Equal(t, "https://example.com/portrait.png", stored["link"])
}

func TestService_QuotaWithoutImagesFails(t *testing.T) {
	db, err := database.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(NewSQLiteStore(db, 16), nil, nil, ServiceConfig{MaxImageBytes: 8})
	err = svc.Upsert(context.Background(), CollectionAgents, "a1",
		json.RawMessage(`{"nome":"a very long name that does not fit"}`))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestService_WritesAnnounceChanges(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, nil, ServiceConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, stop, err := svc.Subscribe(ctx, "current_campaign")
	require.NoError(t, err)
	defer stop()

	require.NoError(t, svc.Upsert(ctx, CollectionCampaignState, "current_campaign", json.RawMessage(`{}`)))
	select {
	case c := <-changes:
		assert.Equal(t, OpUpsert, c.Op)
		assert.Equal(t, CollectionCampaignState, c.Collection)
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	require.NoError(t, svc.Delete(ctx, CollectionCampaignState, "current_campaign"))
	select {
	case c := <-changes:
		assert.Equal(t, OpDelete, c.Op)
	case <-time.After(time.Second):
		t.Fatal("expected a delete notification")
	}
}

func TestService_Clear(t *testing.T) {
	svc, _, remote := newOnlineService(t)
	ctx := context.Background()
	require.NoError(t, svc.Upsert(ctx, CollectionAgents, "a1", json.RawMessage(`{}`)))
	require.NoError(t, remote.MemoryStore.Upsert(ctx, CollectionAgents, "remote-only", json.RawMessage(`{}`)))

	require.NoError(t, svc.Clear(ctx, CollectionAgents))

	docs, err := svc.List(ctx, CollectionAgents)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_RejectsInvalidInput(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, nil, ServiceConfig{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Upsert(ctx, "", "x", json.RawMessage(`{}`)), ErrInvalidKey)
	assert.ErrorIs(t, svc.Upsert(ctx, CollectionAgents, strings.Repeat("x", 200), json.RawMessage(`{}`)), ErrInvalidKey)
	assert.Error(t, svc.Upsert(ctx, CollectionAgents, "x", json.RawMessage(`{not json`)))
}
