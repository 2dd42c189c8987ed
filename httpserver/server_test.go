package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushlink/secret-sharing-backend/apikey"
	"github.com/hushlink/secret-sharing-backend/quota"
	"github.com/hushlink/secret-sharing-backend/ratelimit"
	"github.com/hushlink/secret-sharing-backend/storage"
)

func TestServerLifecycleEndpoints(t *testing.T) {
	log := testLogger()
	store := storage.NewMemoryStore(log)
	t.Cleanup(store.Close)

	handler := NewHandler(&HandlerConfig{
		Store:      store,
		Accountant: quota.NewAccountant(store, quota.DefaultConfig(), log),
		Limiter:    ratelimit.New(ratelimit.Config{}),
		Verifier:   apikey.NewVerifier([]byte(testPepper), apikey.NewStaticKeyStore(nil), log),
		BaseURL:    "https://secrets.example.com",
		Log:        log,
	})

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      log,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, handler)
	require.NoError(t, err)

	router := srv.getRouter()
	get := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/livez"))
	assert.Equal(t, http.StatusOK, get("/readyz"))

	assert.Equal(t, http.StatusOK, get("/drain"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))

	assert.Equal(t, http.StatusOK, get("/undrain"))
	assert.Equal(t, http.StatusOK, get("/readyz"))
}
