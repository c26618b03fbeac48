package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/craftlab/cardsmith/internal/adapter/httpserver"
	"github.com/craftlab/cardsmith/internal/config"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , ,"))
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, ParseOrigins("https://a.test, https://b.test"))
}

func testRouter() http.Handler {
	cfg := config.Config{
		CORSAllowOrigins: "*",
		RateLimitPerMin:  60,
		HTTPWriteTimeout: 30 * time.Second,
	}
	srv := &httpserver.Server{
		Cfg:    cfg,
		Tokens: httpserver.NewTokenManager("test-secret", 0),
	}
	return BuildRouter(cfg, srv)
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AuthedRoutesRejectAnonymous(t *testing.T) {
	t.Parallel()
	router := testRouter()
	for _, path := range []string{"/status/abc", "/gallery"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestBuildReadinessChecks_NilDependencyFails(t *testing.T) {
	t.Parallel()
	db, redis, blob := BuildReadinessChecks(pingStub{}, nil, pingStub{err: errors.New("down")})

	assert.NoError(t, db(context.Background()))
	assert.Error(t, redis(context.Background()))
	assert.ErrorContains(t, blob(context.Background()), "down")
}

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }
