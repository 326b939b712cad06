// ABOUTME: Tests for the history HTTP API
// ABOUTME: Covers auth, key symmetry, limits, and validation failures

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dm-relay/internal/auth"
	"github.com/2389/dm-relay/internal/relay"
	"github.com/2389/dm-relay/internal/store"
	"github.com/2389/dm-relay/internal/transport"
)

const testSecret = "api-test-secret"

type testAPI struct {
	server   *httptest.Server
	store    *store.MemoryStore
	resolver *auth.JWTResolver
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st := store.NewMemoryStore()
	resolver := auth.NewJWTResolver([]byte(testSecret))

	mux := chi.NewRouter()
	NewHandler(st, resolver, nil).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, store: st, resolver: resolver}
}

// seed appends a message between two participants.
func (ta *testAPI) seed(t *testing.T, from, to, text string) {
	t.Helper()
	require.NoError(t, ta.store.AppendMessage(context.Background(), &store.Message{
		ID:              uuid.New().String(),
		ConversationKey: relay.Key(from, to),
		From:            from,
		To:              to,
		Text:            text,
		CreatedAt:       time.Now().UTC(),
	}))
}

// get issues an authenticated history request and returns the response.
func (ta *testAPI) get(t *testing.T, as, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ta.server.URL+path, nil)
	require.NoError(t, err)

	if as != "" {
		token, err := ta.resolver.Generate(as, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ta.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeMessages(t *testing.T, resp *http.Response) []*transport.MessagePayload {
	t.Helper()
	var out []*transport.MessagePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHistory_ReturnsConversationOldestFirst(t *testing.T) {
	ta := newTestAPI(t)
	ta.seed(t, "u1", "u2", "m1")
	ta.seed(t, "u2", "u1", "m2")
	ta.seed(t, "u1", "u2", "m3")

	resp := ta.get(t, "u1", "/api/history/u2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeMessages(t, resp)
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].Text)
	assert.Equal(t, "m2", got[1].Text)
	assert.Equal(t, "m3", got[2].Text)
}

func TestHistory_SymmetricForBothParties(t *testing.T) {
	ta := newTestAPI(t)
	ta.seed(t, "u1", "u2", "hello")

	for _, caller := range []string{"u1", "u2"} {
		peer := "u2"
		if caller == "u2" {
			peer = "u1"
		}
		resp := ta.get(t, caller, "/api/history/"+peer)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeMessages(t, resp)
		require.Len(t, got, 1, "caller %s", caller)
		assert.Equal(t, "hello", got[0].Text)
	}
}

func TestHistory_LimitReturnsMostRecent(t *testing.T) {
	ta := newTestAPI(t)
	for i := 1; i <= 3; i++ {
		ta.seed(t, "u1", "u2", fmt.Sprintf("m%d", i))
	}

	resp := ta.get(t, "u1", "/api/history/u2?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeMessages(t, resp)
	require.Len(t, got, 1)
	assert.Equal(t, "m3", got[0].Text)
}

func TestHistory_EmptyConversation(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.get(t, "u1", "/api/history/u9")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeMessages(t, resp))
}

func TestHistory_RequiresToken(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.get(t, "", "/api/history/u2")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistory_RejectsBadToken(t *testing.T) {
	ta := newTestAPI(t)

	req, err := http.NewRequest(http.MethodGet, ta.server.URL+"/api/history/u2", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer garbage")

	resp, err := ta.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistory_RejectsMalformedPeer(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.get(t, "u1", "/api/history/not%20valid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistory_RejectsBadLimit(t *testing.T) {
	ta := newTestAPI(t)

	for _, q := range []string{"?limit=abc", "?limit=-1"} {
		resp := ta.get(t, "u1", "/api/history/u2"+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %s", q)
	}
}

func TestHealthz(t *testing.T) {
	ta := newTestAPI(t)

	resp, err := http.Get(ta.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
