package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/accounts"
	"github.com/MarcoPoloResearchLab/sundae/internal/analytics"
	"github.com/MarcoPoloResearchLab/sundae/internal/auth"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/database"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/notify"
	"github.com/MarcoPoloResearchLab/sundae/internal/outcome"
	"github.com/MarcoPoloResearchLab/sundae/internal/pagecache"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"github.com/MarcoPoloResearchLab/sundae/internal/redirects"
	"github.com/MarcoPoloResearchLab/sundae/internal/render"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "sundae-test"
	testCookieName    = "sundae_session"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *recordingNotifier) Send(_ context.Context, message notify.Message) outcome.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return outcome.Succeeded()
}

func (n *recordingNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.messages...)
}

type testEnvironment struct {
	handler  http.Handler
	db       *gorm.DB
	issuer   *auth.SessionIssuer
	realtime *RealtimeDispatcher
	cache    *pagecache.MemoryCache
	notifier *recordingNotifier
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	return newTestEnvironmentWithCache(t, nil)
}

// newTestEnvironmentWithCache lets a test wrap the page cache seen by the handler.
// Services keep invalidating the underlying memory cache.
func newTestEnvironmentWithCache(t *testing.T, wrap func(pagecache.Cache) pagecache.Cache) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenAndMigrate(database.Options{Path: filepath.Join(t.TempDir(), "server.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	idProvider := ids.NewUUIDProvider()
	realtime := NewRealtimeDispatcher()
	cache := pagecache.NewMemoryCache(time.Minute, nil)
	invalidator := NewPageInvalidator(cache, realtime, zap.NewNop())

	profileService, err := profiles.NewService(profiles.ServiceConfig{Database: db, IDProvider: idProvider, Invalidator: invalidator})
	if err != nil {
		t.Fatalf("profiles service: %v", err)
	}
	blockService, err := blocks.NewService(blocks.ServiceConfig{Database: db, IDProvider: idProvider, Invalidator: invalidator})
	if err != nil {
		t.Fatalf("blocks service: %v", err)
	}
	accountService, err := accounts.NewService(accounts.ServiceConfig{Database: db, Profiles: profileService, Blocks: blockService, IDProvider: idProvider, Invalidator: invalidator})
	if err != nil {
		t.Fatalf("accounts service: %v", err)
	}
	analyticsService, err := analytics.NewService(analytics.ServiceConfig{
		Database:   db,
		Profiles:   profileService,
		Hasher:     analytics.NewIPHasher("test-salt"),
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("analytics service: %v", err)
	}
	notifier := &recordingNotifier{}
	leadService, err := leads.NewService(leads.ServiceConfig{
		Database:   db,
		Profiles:   profileService,
		Owners:     accountService,
		Notifier:   notifier,
		Listener:   realtime,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("leads service: %v", err)
	}
	renderer, err := render.NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("session validator: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("session issuer: %v", err)
	}

	var handlerCache pagecache.Cache = cache
	if wrap != nil {
		handlerCache = wrap(cache)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Profiles:          profileService,
		Blocks:            blockService,
		Leads:             leadService,
		Analytics:         analyticsService,
		Accounts:          accountService,
		Redirects:         redirects.NewResolver(blockService, analyticsService, zap.NewNop()),
		Renderer:          renderer,
		Cache:             handlerCache,
		Sessions:          validator,
		Issuer:            issuer,
		Realtime:          realtime,
		PublicBaseURL:     "https://sundae.test",
		E2EEnabled:        true,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnvironment{
		handler:  handler,
		db:       db,
		issuer:   issuer,
		realtime: realtime,
		cache:    cache,
		notifier: notifier,
	}
}

func (e *testEnvironment) sessionCookie(t *testing.T, email string) *http.Cookie {
	t.Helper()
	token, expiresAt, err := e.issuer.Issue(auth.Identity{UserID: "e2e:" + email, Email: email, DisplayName: "Ada Lovelace"})
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	return e.issuer.Cookie(token, expiresAt)
}

func (e *testEnvironment) do(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e *testEnvironment) studioRequest(t *testing.T, cookie *http.Cookie, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	request := httptest.NewRequest(method, target, body)
	if form != nil {
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	request.AddCookie(cookie)
	return e.do(request)
}

type editorResponse struct {
	Profile struct {
		ID     string `json:"id"`
		Handle string `json:"handle"`
	} `json:"profile"`
	Blocks []struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		Enabled bool            `json:"enabled"`
		Data    json.RawMessage `json:"data"`
	} `json:"blocks"`
	PublicURL string `json:"publicUrl"`
}

func (e *testEnvironment) editor(t *testing.T, cookie *http.Cookie) editorResponse {
	t.Helper()
	recorder := e.studioRequest(t, cookie, http.MethodGet, "/app/api/editor", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("editor status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload editorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode editor payload: %v", err)
	}
	return payload
}

type blockResponse struct {
	Block struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		Enabled bool            `json:"enabled"`
		Data    json.RawMessage `json:"data"`
	} `json:"block"`
}

func decodeBlock(t *testing.T, recorder *httptest.ResponseRecorder) blockResponse {
	t.Helper()
	var payload blockResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode block payload: %v (%s)", err, recorder.Body.String())
	}
	return payload
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error payload: %v (%s)", err, recorder.Body.String())
	}
	return payload.Error, payload.Code
}
