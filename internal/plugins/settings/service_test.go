package settings

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

const validDSN = "tabletop:segredo@tcp(db:3306)/tabletop?parseTime=true"

// fakeRemote is an in-memory remote store.
type fakeRemote struct {
	*docstore.MemoryStore
	closed bool
}

func (f *fakeRemote) Ping(context.Context) error { return nil }
func (f *fakeRemote) Close() error {
	f.closed = true
	return nil
}

type testEnv struct {
	svc     SettingsService
	store   *docstore.Service
	local   docstore.Store
	dialed  []string
	dialErr error
	remote  *fakeRemote
}

func newTestEnv() *testEnv {
	env := &testEnv{local: docstore.NewMemoryStore()}
	connect := func(_ context.Context, cfg docstore.RemoteConfig) (docstore.RemoteStore, error) {
		env.dialed = append(env.dialed, cfg.DSN)
		if env.dialErr != nil {
			return nil, env.dialErr
		}
		env.remote = &fakeRemote{MemoryStore: docstore.NewMemoryStore()}
		return env.remote, nil
	}
	env.store = docstore.NewService(env.local, nil, connect, docstore.ServiceConfig{})
	env.svc = NewSettingsService(NewSettingsRepository(env.local), env.store)
	return env
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

func TestConnect_Success(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	st, err := env.svc.Connect(ctx, "  "+validDSN+" ")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !st.Online || st.ConnectedAt == nil {
		t.Errorf("expected online status, got %+v", st)
	}
	if st.Address != "db:3306" || st.Database != "tabletop" || st.User != "tabletop" {
		t.Errorf("unexpected connection description %+v", st)
	}

	saved, err := NewSettingsRepository(env.local).Get(ctx)
	if err != nil || saved == nil || saved.DSN != validDSN {
		t.Fatalf("connection not remembered: %+v, %v", saved, err)
	}

	got, err := env.svc.Status(ctx)
	if err != nil || !got.Online || got.Database != "tabletop" {
		t.Errorf("unexpected status %+v, %v", got, err)
	}
}

func TestConnect_InvalidDSN(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for _, dsn := range []string{"", "not a dsn", "tabletop:segredo@tcp(db:3306)/"} {
		_, err := env.svc.Connect(ctx, dsn)
		assertAppError(t, err, http.StatusUnprocessableEntity)
	}
	if len(env.dialed) != 0 {
		t.Errorf("invalid strings must not be dialed: %v", env.dialed)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	env := newTestEnv()
	env.dialErr = errors.New("dial tcp: connection refused")

	_, err := env.svc.Connect(context.Background(), validDSN)
	assertAppError(t, err, http.StatusServiceUnavailable)
	if apperror.SafeMessage(err) != "could not connect to the store: dial tcp: connection refused" {
		t.Errorf("unexpected message %q", apperror.SafeMessage(err))
	}

	st, _ := env.svc.Status(context.Background())
	if st.Online || st.LastError == "" {
		t.Errorf("expected offline status with last error, got %+v", st)
	}
	if saved, _ := NewSettingsRepository(env.local).Get(context.Background()); saved != nil {
		t.Error("failed connection must not be remembered")
	}
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if _, err := env.svc.Connect(ctx, validDSN); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	st, err := env.svc.Disconnect(ctx)
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if st.Online {
		t.Error("expected offline after disconnect")
	}
	if !env.remote.closed {
		t.Error("remote store not closed")
	}
	if saved, _ := NewSettingsRepository(env.local).Get(ctx); saved != nil {
		t.Error("connection should be forgotten")
	}
}

func TestRestore(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if err := env.svc.Restore(ctx); err != nil {
		t.Fatalf("Restore with nothing saved: %v", err)
	}
	if len(env.dialed) != 0 {
		t.Fatal("nothing should be dialed")
	}

	_ = NewSettingsRepository(env.local).Save(ctx, &StoreSettings{DSN: validDSN})
	if err := env.svc.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !env.store.Online() || len(env.dialed) != 1 {
		t.Errorf("expected reconnect, dialed %v", env.dialed)
	}
}
