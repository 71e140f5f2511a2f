package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/onboarding-service/internal/core/domain"
	"github.com/duynhne/onboarding-service/internal/core/repository/memory"
	logicv1 "github.com/duynhne/onboarding-service/internal/logic/v1"
	"github.com/duynhne/onboarding-service/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type codeRecorder struct{ last string }

func (r *codeRecorder) SendCode(_ context.Context, _, code string, _ time.Duration) error {
	r.last = code
	return nil
}

type stubAvatars struct{}

func (stubAvatars) Store(_ context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.ErrInvalidImage
	}
	return "avatar_test", nil
}

func (stubAvatars) Path(string) (string, error) { return "", domain.ErrAvatarNotFound }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }

// asUser stands in for the auth middleware; the X-User header names the caller.
func asUser(c *gin.Context) {
	if id := c.GetHeader("X-User"); id != "" {
		c.Set(middleware.UserIDKey, id)
	}
	c.Next()
}

func newRouter(t *testing.T) (*gin.Engine, *codeRecorder) {
	t.Helper()
	profiles := memory.NewProfileRepository()
	codes := &codeRecorder{}
	verification := logicv1.NewVerificationService(memory.NewCodeStore(), codes, logicv1.VerificationConfig{
		CodeTTL:        10 * time.Minute,
		ResendCooldown: 30 * time.Second,
		MaxAttempts:    5,
		HashCost:       bcrypt.MinCost,
	}, zap.NewNop())

	svc := logicv1.NewOnboardingService(logicv1.Dependencies{
		Sessions:     memory.NewSessionStore(time.Hour),
		Profiles:     profiles,
		Usernames:    logicv1.NewUsernameChecker(profiles, time.Second),
		Verification: verification,
		Avatars:      stubAvatars{},
		Events:       nopPublisher{},
	}, logicv1.DefaultRules(), zap.NewNop())

	r := gin.New()
	NewOnboardingHandler(svc).RegisterRoutes(r.Group("/api/v1"), asUser)
	return r, codes
}

func do(r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func startSession(t *testing.T, r http.Handler, flow string) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/onboarding/sessions", "user-1", map[string]string{"flow": flow})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func TestStartSession(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/onboarding/sessions", "user-1", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "profile", body["flow"])
	assert.Equal(t, "welcome", body["currentStep"])
	assert.EqualValues(t, 20, body["completionPercentage"])
	assert.EqualValues(t, 25, body["totalXp"])

	w = do(r, http.MethodPost, "/api/v1/onboarding/sessions", "user-1", map[string]string{"flow": "checkout"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/onboarding/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAccess(t *testing.T) {
	r, _ := newRouter(t)
	id := startSession(t, r, "profile")

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/onboarding/sessions/"+id, "user-1", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/onboarding/sessions/"+id, "user-2", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/onboarding/sessions/nope", "user-1", nil).Code)
}

func TestUpdateField(t *testing.T) {
	r, _ := newRouter(t)
	id := startSession(t, r, "profile")
	path := "/api/v1/onboarding/sessions/" + id + "/fields"

	w := do(r, http.MethodPatch, path, "user-1", map[string]any{"field": "username", "value": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["applied"])
	session := body["session"].(map[string]any)
	assert.EqualValues(t, 40, session["completionPercentage"])
	assert.EqualValues(t, 125, session["totalXp"])

	w = do(r, http.MethodPatch, path, "user-1", map[string]any{"field": "theme", "value": "neon"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["applied"])

	w = do(r, http.MethodPatch, path, "user-1", map[string]any{"value": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request", decode(t, w)["error"])
}

func TestTags(t *testing.T) {
	r, _ := newRouter(t)
	id := startSession(t, r, "profile")

	w := do(r, http.MethodPost, "/api/v1/onboarding/sessions/"+id+"/tags", "user-1", map[string]string{"tag": "forex"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["applied"])

	w = do(r, http.MethodDelete, "/api/v1/onboarding/sessions/"+id+"/tags/forex", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["applied"])
	draft := body["session"].(map[string]any)["draft"].(map[string]any)
	assert.Empty(t, draft["tags"])
}

func TestAdvance_IncompleteStep(t *testing.T) {
	r, _ := newRouter(t)
	id := startSession(t, r, "strategy")

	w := do(r, http.MethodPost, "/api/v1/onboarding/sessions/"+id+"/advance", "user-1", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "please fill in all required fields", body["error"])
	assert.Equal(t, "strategy", body["step"])
	assert.Equal(t, []any{"strategyName"}, body["missingFields"])
}

func TestAdvance_BlankCredentialReportedAsMissing(t *testing.T) {
	r, _ := newRouter(t)
	id := startSession(t, r, "strategy")
	fields := "/api/v1/onboarding/sessions/" + id + "/fields"
	advance := "/api/v1/onboarding/sessions/" + id + "/advance"

	require.Equal(t, http.StatusOK, do(r, http.MethodPatch, fields, "user-1", map[string]any{"field": "strategyName", "value": "Breakout"}).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, advance, "user-1", nil).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPatch, fields, "user-1", map[string]any{"field": "platform", "value": "mt5"}).Code)

	w := do(r, http.MethodPost, advance, "user-1", map[string]any{
		"credentials": map[string]string{"username": "login", "password": ""},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "connect", body["step"])
	assert.Equal(t, []any{"accountPassword"}, body["missingFields"])
}

func TestAdvance_ConnectWithoutLinker(t *testing.T) {
	r, _ := newRouter(t)
	id := startSession(t, r, "strategy")
	fields := "/api/v1/onboarding/sessions/" + id + "/fields"
	advance := "/api/v1/onboarding/sessions/" + id + "/advance"

	require.Equal(t, http.StatusOK, do(r, http.MethodPatch, fields, "user-1", map[string]any{"field": "strategyName", "value": "Breakout"}).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, advance, "user-1", nil).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPatch, fields, "user-1", map[string]any{"field": "platform", "value": "mt5"}).Code)

	w := do(r, http.MethodPost, advance, "user-1", map[string]any{
		"credentials": map[string]string{"username": "login", "password": "secret"},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestVerificationFlow(t *testing.T) {
	r, codes := newRouter(t)
	id := startSession(t, r, "profile")
	base := "/api/v1/onboarding/sessions/" + id

	w := do(r, http.MethodPost, base+"/verification", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, do(r, http.MethodPatch, base+"/fields", "user-1", map[string]any{"field": "email", "value": "t@example.com"}).Code)
	require.Equal(t, http.StatusAccepted, do(r, http.MethodPost, base+"/verification", "user-1", nil).Code)

	w = do(r, http.MethodPost, base+"/verification", "user-1", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = do(r, http.MethodPost, base+"/verification/confirm", "user-1", map[string]string{"code": "12"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/verification/confirm", "user-1", map[string]string{"code": codes.last})
	require.Equal(t, http.StatusOK, w.Code)
	draft := decode(t, w)["draft"].(map[string]any)
	assert.Equal(t, true, draft["emailVerified"])
}

func TestCheckUsername(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodGet, "/api/v1/onboarding/usernames/alice/availability", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["available"])

	w = do(r, http.MethodGet, "/api/v1/onboarding/usernames/ab/availability", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["available"])
}

func TestUploadAvatar(t *testing.T) {
	r, _ := newRouter(t)
	id := startSession(t, r, "profile")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/onboarding/sessions/"+id+"/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	draft := decode(t, w)["draft"].(map[string]any)
	assert.Equal(t, "avatar_test", draft["avatarReference"])

	w = do(r, http.MethodPost, "/api/v1/onboarding/sessions/"+id+"/avatar", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/avatars/avatar_missing", "", nil).Code)
}

func TestWriteError_HidesUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	_, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "test")

	writeError(c, span, zap.NewNop(), "boom", errors.New("pq: connection reset by peer at 10.0.0.7"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "10.0.0.7"))
}
