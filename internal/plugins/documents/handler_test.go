package documents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

const testCampaign = "current_campaign"

type testEnv struct {
	srv         *httptest.Server
	store       *docstore.Service
	gmToken     string
	playerToken string
}

// newTestEnv starts the documents API behind real session auth. The first
// registered account is the game master.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := docstore.NewService(docstore.NewMemoryStore(), nil, nil, docstore.ServiceConfig{})
	authSvc := auth.NewAuthService(
		auth.NewUserRepository(docstore.NewMemoryStore()),
		auth.NewMemorySessionStore(),
		time.Hour,
		"",
	)
	for _, name := range []string{"mestre", "ana"} {
		_, err := authSvc.Register(ctx, auth.RegisterInput{Username: name, Password: "segredo"})
		require.NoError(t, err)
	}
	gmToken, _, err := authSvc.Login(ctx, auth.LoginInput{Username: "mestre", Password: "segredo"})
	require.NoError(t, err)
	playerToken, _, err := authSvc.Login(ctx, auth.LoginInput{Username: "ana", Password: "segredo"})
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, map[string]any{"message": he.Message})
			return
		}
		_ = c.JSON(apperror.SafeCode(err), map[string]string{"message": apperror.SafeMessage(err)})
	}
	authed := e.Group("/api/v1", auth.RequireAuth(authSvc))
	RegisterRoutes(authed, NewHandler(NewDocumentService(store)))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, gmToken: gmToken, playerToken: playerToken}
}

func (env *testEnv) client(token string) *docstore.HTTPStore {
	return docstore.NewHTTPStore(docstore.HTTPStoreConfig{BaseURL: env.srv.URL, Token: token})
}

func statusOf(err error) int {
	var se *docstore.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func TestEndToEnd_PlayerSeesPublishedToken(t *testing.T) {
	env := newTestEnv(t)
	cfg := tabletop.Config{CampaignID: testCampaign}

	gm := tabletop.NewTable(cfg, tabletop.Actor{UserID: "gm", Role: tabletop.RoleMaster}, env.client(env.gmToken), nil)
	viewer := tabletop.NewTable(cfg, tabletop.Actor{UserID: "ana", Role: tabletop.RolePlayer}, env.client(env.playerToken), nil)

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan error, 1)
	go func() { watchDone <- viewer.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-watchDone
	})

	_, err := gm.CreateToken(context.Background(), tabletop.TokenSpec{
		Label:    "AG",
		Position: &tabletop.Point{X: 100, Y: 100},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state := viewer.State()
		return len(state.Tokens) == 1 && state.Tokens[0].Label == "AG"
	}, 5*time.Second, 20*time.Millisecond)

	tok := viewer.State().Tokens[0]
	assert.Equal(t, 100.0, tok.X)
	assert.Equal(t, 100.0, tok.Y)
}

func TestPut_CampaignStateRequiresGameMaster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.client(env.playerToken).Upsert(ctx, docstore.CollectionCampaignState, testCampaign, []byte(`{"tokens":[]}`))
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	_, err = env.store.Get(ctx, docstore.CollectionCampaignState, testCampaign)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, env.client(env.gmToken).Upsert(ctx, docstore.CollectionCampaignState, testCampaign, []byte(`{"tokens":[]}`)))
}

func TestAgents_ReadOnlyThroughDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sheet := []byte(`{"ownerId":"gm-user","nome":"Dante"}`)
	require.NoError(t, env.store.Upsert(ctx, docstore.CollectionAgents, "gm-sheet", sheet))

	player := env.client(env.playerToken)
	docs, err := player.List(ctx, docstore.CollectionAgents)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	err = player.Upsert(ctx, docstore.CollectionAgents, "gm-sheet", []byte(`{"garbage":true}`))
	assert.Equal(t, http.StatusForbidden, statusOf(err))
	err = player.Delete(ctx, docstore.CollectionAgents, "gm-sheet")
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	// Not even the game master bypasses the agents endpoints.
	err = env.client(env.gmToken).Upsert(ctx, docstore.CollectionAgents, "a2", []byte(`{"nome":"Ana"}`))
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	doc, err := env.store.Get(ctx, docstore.CollectionAgents, "gm-sheet")
	require.NoError(t, err)
	assert.JSONEq(t, string(sheet), string(doc.Data))
}

func TestUsersCollectionNotExposed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client(env.gmToken).List(ctx, docstore.CollectionUsers)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	err = env.client(env.gmToken).Upsert(ctx, docstore.CollectionUsers, "u1", []byte(`{"role":"admin"}`))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestUnauthenticatedRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client("").Get(ctx, docstore.CollectionAgents, "a1")
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	_, _, err = env.client("bogus").Subscribe(ctx, testCampaign)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestPut_RejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPut, env.srv.URL+"/api/v1/documents/agents/a1", strings.NewReader(`{"nome":`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.playerToken)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestWatch_RequiresSubscriber(t *testing.T) {
	svc := NewDocumentService(docstore.NewMemoryStore())
	_, _, err := svc.Watch(context.Background(), tabletop.Actor{Role: tabletop.RolePlayer}, testCampaign)
	assert.True(t, apperror.Is(err, http.StatusServiceUnavailable))

	_, _, err = svc.Watch(context.Background(), tabletop.Actor{}, testCampaign)
	assert.True(t, apperror.Is(err, http.StatusForbidden))
}
