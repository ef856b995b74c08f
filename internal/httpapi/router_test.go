package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"youapp/internal/auth"
	"youapp/internal/messaging"
	"youapp/internal/profile"
	"youapp/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testAPI struct {
	handler   http.Handler
	issuer    *auth.Issuer
	uploadDir string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := repository.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := auth.NewIssuer("test-secret", time.Hour)
	uploadDir := t.TempDir()
	profiles := profile.NewService(store, issuer, uploadDir, 1024, logger)
	messages := messaging.NewService(store, store, logger, nil)

	handler := NewRouter(RouterConfig{
		Auth:       NewAuthHandler(profiles, logger),
		Profiles:   NewProfileHandler(profiles, 1024, logger),
		Messages:   NewMessageHandler(messages, logger),
		UploadDir:  uploadDir,
		Verifier:   issuer,
		Logger:     logger,
		Middleware: []func(http.Handler) http.Handler{CORS, RequestLogger(logger, nil)},
	})
	return &testAPI{handler: handler, issuer: issuer, uploadDir: uploadDir}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in, returning the token and user id.
func (a *testAPI) signup(t *testing.T, email, username string) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/register", "", map[string]string{"email": email, "username": username, "password": "secret-pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": "secret-pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out authResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.True(t, out.Auth)
	claims, err := a.issuer.Verify(out.AccessToken)
	require.NoError(t, err)
	return out.AccessToken, claims.ID
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "API is running!", rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRegister_And_Login(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "alice@example.com", "alice")

	t.Run("duplicate email", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/users/register", "", map[string]string{"email": "ALICE@example.com", "username": "x", "password": "secret-pw"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "User already exists.", decodeMap(t, rec)["message"])
	})

	t.Run("invalid input", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/register", "", map[string]string{"email": "nope"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/users/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeMap(t, rec)
		require.Equal(t, false, body["auth"])
		require.Equal(t, "Invalid credentials", body["message"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthentication_Failures(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, map[string]any{"auth": false, "message": "No token provided."}, decodeMap(t, rec))

	rec = api.do(t, http.MethodGet, "/api/profile", "garbage", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, map[string]any{"auth": false, "message": "Failed to authenticate token."}, decodeMap(t, rec))

	// A valid token in the query string is not accepted on REST routes
	token, _ := api.signup(t, "query@example.com", "query")
	rec = api.do(t, http.MethodGet, "/api/profile?token="+token, "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfile(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.signup(t, "bob@example.com", "bob")

	rec := api.do(t, http.MethodPut, "/api/profile", token, map[string]string{"displayName": "Bobby", "birthday": "21/03/1995"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated updateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	require.Equal(t, "Profile updated successfully!", updated.Message)
	require.Equal(t, "Aries", updated.User.Zodiac)
	require.Equal(t, profile.DailyHoroscope, updated.User.Horoscope)

	rec = api.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got profileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, "Bobby", got.DisplayName)
	require.Equal(t, "bob@example.com", got.Email)
	require.Empty(t, got.Avatar)

	rec = api.do(t, http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, map[string]any{"email": "bob@example.com", "username": "bob"}, decodeMap(t, rec))

	rec = api.do(t, http.MethodPut, "/api/profile", token, map[string]string{"birthday": "1995-03-21"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfile_Vanished_User(t *testing.T) {
	api := newTestAPI(t)
	token, err := api.issuer.Issue(uuid.NewString(), "ghost@example.com", "ghost")
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "User not found.", decodeMap(t, rec)["message"])
}

func uploadAvatar(t *testing.T, api *testAPI, token string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func TestAvatar_Upload_And_Serve(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	token, _ := api.signup(t, "carol@example.com", "carol")

	rec := uploadAvatar(t, api, token, pngHeader)
	req.Equal(http.StatusOK, rec.Code, rec.Body.String())
	var out avatarResponse
	req.NoError(json.NewDecoder(rec.Body).Decode(&out))
	req.True(strings.HasPrefix(out.Avatar, "/uploads/"))
	req.FileExists(filepath.Join(api.uploadDir, strings.TrimPrefix(out.Avatar, "/uploads/")))

	rec = api.do(t, http.MethodGet, out.Avatar, "", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(pngHeader, rec.Body.Bytes())

	rec = uploadAvatar(t, api, token, []byte("plain text"))
	req.Equal(http.StatusBadRequest, rec.Code)

	entries, err := os.ReadDir(api.uploadDir)
	req.NoError(err)
	req.Len(entries, 1)
}

func TestUsers_All(t *testing.T) {
	api := newTestAPI(t)
	token, id := api.signup(t, "dave@example.com", "dave")
	api.signup(t, "erin@example.com", "erin")

	rec := api.do(t, http.MethodGet, "/api/users/all", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []userSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	require.Len(t, users, 2)
	require.Equal(t, id, users[0].ID.String())
	require.Equal(t, "dave", users[0].Username)
}

func TestMessages(t *testing.T) {
	api := newTestAPI(t)
	aliceToken, aliceID := api.signup(t, "alice@example.com", "alice")
	bobToken, bobID := api.signup(t, "bob@example.com", "bob")

	t.Run("send then read both directions", func(t *testing.T) {
		req := require.New(t)
		rec := api.do(t, http.MethodPost, "/api/messages/send", aliceToken, map[string]string{"recipientId": bobID, "content": "hi bob"})
		req.Equal(http.StatusCreated, rec.Code, rec.Body.String())
		body := decodeMap(t, rec)
		req.Equal("Message sent successfully.", body["message"])
		data := body["data"].(map[string]any)
		req.Equal(aliceID, data["sender"])
		req.Equal(bobID, data["recipient"])
		req.NotEmpty(data["id"])
		req.NotEmpty(data["timestamp"])

		rec = api.do(t, http.MethodPost, "/api/messages/send", bobToken, map[string]string{"recipientId": aliceID, "content": "hi alice"})
		req.Equal(http.StatusCreated, rec.Code)

		var fromAlice, fromBob []messaging.ConversationEntry
		rec = api.do(t, http.MethodGet, "/api/messages/conversation/"+bobID, aliceToken, nil)
		req.Equal(http.StatusOK, rec.Code)
		req.NoError(json.NewDecoder(rec.Body).Decode(&fromAlice))
		rec = api.do(t, http.MethodGet, "/api/messages/conversation/"+aliceID, bobToken, nil)
		req.NoError(json.NewDecoder(rec.Body).Decode(&fromBob))

		req.Len(fromAlice, 2)
		req.Equal(fromAlice, fromBob)
		req.Equal("hi bob", fromAlice[0].Content)
		req.Equal("alice", fromAlice[0].Sender.Username)
		req.Equal("bob", fromAlice[0].Recipient.Username)
	})

	t.Run("missing fields", func(t *testing.T) {
		req := require.New(t)
		rec := api.do(t, http.MethodPost, "/api/messages/send", aliceToken, map[string]string{"content": "no recipient"})
		req.Equal(http.StatusBadRequest, rec.Code)
		body := decodeMap(t, rec)
		req.Equal("All fields are required.", body["message"])
		req.Contains(body["errors"], "recipientId")
	})

	t.Run("malformed recipient", func(t *testing.T) {
		req := require.New(t)
		rec := api.do(t, http.MethodPost, "/api/messages/send", aliceToken, map[string]string{"recipientId": "not-a-uuid", "content": "hi"})
		req.Equal(http.StatusBadRequest, rec.Code)
		body := decodeMap(t, rec)
		req.Equal("Invalid request.", body["message"])
		req.Equal(map[string]any{"recipientId": "must be a valid id"}, body["errors"])
	})

	t.Run("bad conversation id", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/messages/conversation/not-a-uuid", aliceToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires auth", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/messages/send", "", map[string]string{"recipientId": bobID, "content": "x"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCORS_Preflight(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodOptions, "/api/messages/send", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
