package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/hub"
	"github.com/ViniZap4/lumi-notes/session"
	"github.com/ViniZap4/lumi-notes/store/memory"
)

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ms := memory.New()
	h := hub.New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	sessions := session.NewManager(ms, h)
	t.Cleanup(func() {
		sessions.Close()
		cancel()
	})

	srv := NewServer(
		auth.NewService(ms, auth.WithBcryptCost(bcrypt.MinCost)),
		auth.NewTokens([]byte("test-secret")),
		sessions,
		h,
		Config{Logger: zerolog.Nop()},
	)
	return &testServer{Server: srv, store: ms}
}

func (ts *testServer) do(t *testing.T, method, target, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.TokenHeader, token)
	}

	resp, err := ts.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (ts *testServer) register(t *testing.T, email string) authResponse {
	t.Helper()
	status, body := ts.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email":        email,
		"password":     "abcdefg1",
		"full_name":    "Ada Lovelace",
		"phone_number": "628123456789",
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))

	var resp authResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	ts.waitSynced(t, resp.Token)
	return resp
}

func (ts *testServer) waitSynced(t *testing.T, token string) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, body := ts.do(t, "GET", "/api/session", token, nil)
		var resp sessionResponse
		_ = json.Unmarshal(body, &resp)
		return status == fiber.StatusOK && resp.State == "synced"
	}, 2*time.Second, 10*time.Millisecond)
}

func (ts *testServer) tree(t *testing.T, token string) domain.TreeView {
	t.Helper()
	status, body := ts.do(t, "GET", "/api/tree", token, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	var view domain.TreeView
	require.NoError(t, json.Unmarshal(body, &view))
	return view
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	reg := ts.register(t, "Ada@Example.com")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, reg.User.ID, reg.SessionID)
	assert.Equal(t, "ada@example.com", reg.User.Email)

	status, body := ts.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "abcdefg1", "full_name": "X", "phone_number": "628123456789",
	})
	assert.Equal(t, fiber.StatusConflict, status, string(body))

	status, body = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"email": " ADA@example.com", "password": "abcdefg1"})
	require.Equal(t, fiber.StatusOK, status, string(body))

	status, _ = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong123"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRegisterRejection(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email": "a@b.com", "password": "abcdefgh", "full_name": "X", "phone_number": "628123456789",
	})
	require.Equal(t, fiber.StatusBadRequest, status)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "password", resp.Field)
	assert.Contains(t, resp.Error, "letters and numbers")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, "GET", "/api/tree", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestNoteLifecycle(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register(t, "ada@example.com")
	token := reg.Token

	status, body := ts.do(t, "POST", "/api/folders", token, map[string]string{"name": "Work"})
	require.Equal(t, fiber.StatusAccepted, status, string(body))
	var op opResponse
	require.NoError(t, json.Unmarshal(body, &op))
	assert.NotEmpty(t, op.OpID)

	status, body = ts.do(t, "POST", "/api/notes", token, map[string]string{"parent": "Work", "title": "Plan"})
	require.Equal(t, fiber.StatusAccepted, status, string(body))

	status, body = ts.do(t, "PUT", "/api/notes/Work/Plan", token, map[string]string{"content": "<b>X</b>"})
	require.Equal(t, fiber.StatusAccepted, status, string(body))

	status, body = ts.do(t, "GET", "/api/notes/Work/Plan", token, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	var node domain.NodeView
	require.NoError(t, json.Unmarshal(body, &node))
	assert.Equal(t, "<b>X</b>", node.Content)
	assert.Equal(t, "Work/Plan", node.Path)

	key := "notes/" + reg.SessionID + "/Work/Plan"
	require.Eventually(t, func() bool {
		v, err := ts.store.Read(context.Background(), key)
		return err == nil && v != nil && v.Content == "<b>X</b>"
	}, 2*time.Second, 10*time.Millisecond)

	status, body = ts.do(t, "GET", "/api/notes/Work/Plan?source=remote", token, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))

	status, _ = ts.do(t, "POST", "/api/folders", token, map[string]string{"name": "Work"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = ts.do(t, "PUT", "/api/notes/Work", token, map[string]string{"content": "x"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = ts.do(t, "DELETE", "/api/nodes/Work", token, nil)
	require.Equal(t, fiber.StatusAccepted, status)

	status, _ = ts.do(t, "GET", "/api/notes/Work/Plan", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	require.Eventually(t, func() bool {
		v, err := ts.store.Read(context.Background(), key)
		return err == nil && v == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, ts.tree(t, token).Nodes)
}

func TestSessionStopAndRestart(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ada@example.com").Token

	status, _ := ts.do(t, "DELETE", "/api/session", token, nil)
	require.Equal(t, fiber.StatusNoContent, status)

	status, body := ts.do(t, "GET", "/api/tree", token, nil)
	assert.Equal(t, fiber.StatusConflict, status, string(body))

	status, body = ts.do(t, "POST", "/api/session", token, nil)
	require.Equal(t, fiber.StatusAccepted, status, string(body))
	ts.waitSynced(t, token)
	assert.Empty(t, ts.tree(t, token).Nodes)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidName, fiber.StatusBadRequest},
		{&auth.RejectionError{Field: "email"}, fiber.StatusBadRequest},
		{domain.ErrInvalidCredentials, fiber.StatusUnauthorized},
		{domain.ErrNotFound, fiber.StatusNotFound},
		{domain.ErrNoSession, fiber.StatusConflict},
		{domain.ErrCannotDeleteRoot, fiber.StatusUnprocessableEntity},
		{domain.ErrWriteFailed, fiber.StatusBadGateway},
		{domain.ErrRemoteUnavailable, fiber.StatusServiceUnavailable},
		{errors.New("other"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, writeEvent(w, hub.OpResult("op-1", nil)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: op_result\ndata: {"))
	assert.Contains(t, out, `"op_id":"op-1"`)
	assert.True(t, strings.HasSuffix(out, "\n\n"))
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, splitPath(""))
	assert.Nil(t, splitPath("/"))
	assert.Equal(t, []string{"a", "b c"}, splitPath("/a/b c/"))
}
