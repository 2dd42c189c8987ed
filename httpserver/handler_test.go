package httpserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushlink/secret-sharing-backend/api"
	"github.com/hushlink/secret-sharing-backend/apikey"
	"github.com/hushlink/secret-sharing-backend/envelope"
	"github.com/hushlink/secret-sharing-backend/interfaces"
	"github.com/hushlink/secret-sharing-backend/quota"
	"github.com/hushlink/secret-sharing-backend/ratelimit"
	"github.com/hushlink/secret-sharing-backend/storage"
)

const (
	testKeyPrefix = "testkey1"
	testKeySecret = "supersecret"
	testPepper    = "unit-test-pepper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	srv    *httptest.Server
	store  *storage.MemoryStore
	client *http.Client
}

type testOpts struct {
	rateLimits map[ratelimit.Op]ratelimit.Limit
	quotaCfg   *quota.Config
}

func newTestEnv(t *testing.T, opts testOpts) *testEnv {
	t.Helper()
	log := testLogger()

	store := storage.NewMemoryStore(log)
	t.Cleanup(store.Close)

	quotaCfg := quota.DefaultConfig()
	if opts.quotaCfg != nil {
		quotaCfg = *opts.quotaCfg
	}

	limiterCfg := ratelimit.Config{Limits: opts.rateLimits}

	keyStore := apikey.NewStaticKeyStore([]apikey.Record{
		{Prefix: testKeyPrefix, Digest: apikey.ComputeDigest([]byte(testPepper), testKeyPrefix, testKeySecret)},
	})

	handler := NewHandler(&HandlerConfig{
		Store:      store,
		Accountant: quota.NewAccountant(store, quotaCfg, log),
		Limiter:    ratelimit.New(limiterCfg),
		Verifier:   apikey.NewVerifier([]byte(testPepper), keyStore, log),
		BaseURL:    "https://secrets.example.com",
		Log:        log,
	})

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		MetricsAddr:              "",
		Log:                      log,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, handler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)

	return &testEnv{srv: ts, store: store, client: ts.Client()}
}

func (e *testEnv) post(t *testing.T, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createRequestBody(t *testing.T, passphrase string, ttlSeconds int64) (api.CreateSecretRequest, *envelope.Secret) {
	t.Helper()
	sec, err := envelope.Create([]byte("the launch codes"), passphrase)
	require.NoError(t, err)
	raw, err := envelope.Marshal(sec.Envelope)
	require.NoError(t, err)
	return api.CreateSecretRequest{
		Envelope:   raw,
		ClaimHash:  sec.ClaimHash.String(),
		TTLSeconds: ttlSeconds,
	}, sec
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": fmt.Sprintf("Bearer %s.%s", testKeyPrefix, testKeySecret)}
}

func TestPublicCreateAndClaimLifecycle(t *testing.T) {
	env := newTestEnv(t, testOpts{})

	createReq, sec := createRequestBody(t, "", 0)
	resp := env.post(t, "/api/public/secrets", createReq, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[api.CreateSecretResponse](t, resp)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "https://secrets.example.com/s/"+created.ID, created.ShareURL)
	assert.WithinDuration(t, time.Now().Add(interfaces.DefaultTTLSeconds*time.Second), created.ExpiresAt, time.Minute)

	claimPath := fmt.Sprintf("/api/public/secrets/%s/claim", created.ID)
	claimBody := api.ClaimSecretRequest{Claim: base64.RawURLEncoding.EncodeToString(sec.ClaimToken)}

	resp = env.post(t, claimPath, claimBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	claimed := decodeBody[api.ClaimSecretResponse](t, resp)

	// The returned envelope must be byte-identical to what create stored.
	assert.JSONEq(t, string(createReq.Envelope), string(claimed.Envelope))

	returned, err := envelope.Parse(claimed.Envelope)
	require.NoError(t, err)
	plaintext, err := envelope.Decrypt(returned, sec.URLKey, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("the launch codes"), plaintext)

	// Exactly once: the second claim with the correct token is a 404.
	resp = env.post(t, claimPath, claimBody, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestClaimWithWrongTokenDoesNotConsume(t *testing.T) {
	env := newTestEnv(t, testOpts{})

	createReq, sec := createRequestBody(t, "", 0)
	resp := env.post(t, "/api/public/secrets", createReq, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[api.CreateSecretResponse](t, resp)

	claimPath := fmt.Sprintf("/api/public/secrets/%s/claim", created.ID)

	wrong := bytes.Repeat([]byte{0x42}, envelope.ClaimTokenSize)
	resp = env.post(t, claimPath, api.ClaimSecretRequest{Claim: base64.RawURLEncoding.EncodeToString(wrong)}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, claimPath, api.ClaimSecretRequest{Claim: base64.RawURLEncoding.EncodeToString(sec.ClaimToken)}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateRejections(t *testing.T) {
	env := newTestEnv(t, testOpts{})
	goodReq, _ := createRequestBody(t, "", 0)

	t.Run("malformed envelope", func(t *testing.T) {
		req := goodReq
		req.Envelope = json.RawMessage(`{"v":99}`)
		resp := env.post(t, "/api/public/secrets", req, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("malformed claim hash", func(t *testing.T) {
		req := goodReq
		req.ClaimHash = "not-a-hash"
		resp := env.post(t, "/api/public/secrets", req, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("ttl out of range", func(t *testing.T) {
		req := goodReq
		req.TTLSeconds = interfaces.MaxTTLSeconds + 1
		resp := env.post(t, "/api/public/secrets", req, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("claim with malformed token", func(t *testing.T) {
		resp := env.post(t, "/api/public/secrets/some-id/claim", api.ClaimSecretRequest{Claim: "!!!"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestAuthedCreateRequiresValidKey(t *testing.T) {
	env := newTestEnv(t, testOpts{})
	createReq, _ := createRequestBody(t, "", 0)

	t.Run("missing credential", func(t *testing.T) {
		resp := env.post(t, "/api/authed/secrets", createReq, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("wrong secret", func(t *testing.T) {
		resp := env.post(t, "/api/authed/secrets", createReq,
			map[string]string{"Authorization": "Bearer " + testKeyPrefix + ".wrong"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("valid credential", func(t *testing.T) {
		resp := env.post(t, "/api/authed/secrets", createReq, authHeader())
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestBurnByOwner(t *testing.T) {
	env := newTestEnv(t, testOpts{})

	createReq, sec := createRequestBody(t, "", 0)
	resp := env.post(t, "/api/authed/secrets", createReq, authHeader())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[api.CreateSecretResponse](t, resp)

	t.Run("burn requires authentication", func(t *testing.T) {
		resp := env.post(t, fmt.Sprintf("/api/authed/secrets/%s/burn", created.ID), struct{}{}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("owner burns, then claim misses", func(t *testing.T) {
		resp := env.post(t, fmt.Sprintf("/api/authed/secrets/%s/burn", created.ID), struct{}{}, authHeader())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		burned := decodeBody[api.BurnSecretResponse](t, resp)
		assert.True(t, burned.OK)

		claimBody := api.ClaimSecretRequest{Claim: base64.RawURLEncoding.EncodeToString(sec.ClaimToken)}
		resp = env.post(t, fmt.Sprintf("/api/public/secrets/%s/claim", created.ID), claimBody, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("burning a public secret as key owner misses", func(t *testing.T) {
		pubReq, _ := createRequestBody(t, "", 0)
		resp := env.post(t, "/api/public/secrets", pubReq, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		pub := decodeBody[api.CreateSecretResponse](t, resp)

		resp = env.post(t, fmt.Sprintf("/api/authed/secrets/%s/burn", pub.ID), struct{}{}, authHeader())
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestPublicCreateRateLimited(t *testing.T) {
	env := newTestEnv(t, testOpts{
		rateLimits: map[ratelimit.Op]ratelimit.Limit{
			ratelimit.OpPublicCreate: {Rate: 0, Burst: 2},
		},
	})

	for i := 0; i < 2; i++ {
		req, _ := createRequestBody(t, "", 0)
		resp := env.post(t, "/api/public/secrets", req, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	req, _ := createRequestBody(t, "", 0)
	resp := env.post(t, "/api/public/secrets", req, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// A different client address has its own bucket.
	req, _ = createRequestBody(t, "", 0)
	resp = env.post(t, "/api/public/secrets", req, map[string]string{"X-Forwarded-For": "203.0.113.77"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestPublicQuotas(t *testing.T) {
	t.Run("secret count cap yields 429", func(t *testing.T) {
		env := newTestEnv(t, testOpts{quotaCfg: &quota.Config{
			Public:        interfaces.TierLimits{MaxActiveSecrets: 1, MaxActiveBytes: 1 << 20},
			Authenticated: quota.DefaultConfig().Authenticated,
		}})

		req, _ := createRequestBody(t, "", 0)
		resp := env.post(t, "/api/public/secrets", req, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		req, _ = createRequestBody(t, "", 0)
		resp = env.post(t, "/api/public/secrets", req, nil)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("byte cap yields 413", func(t *testing.T) {
		env := newTestEnv(t, testOpts{quotaCfg: &quota.Config{
			Public:        interfaces.TierLimits{MaxActiveSecrets: 100, MaxActiveBytes: 64},
			Authenticated: quota.DefaultConfig().Authenticated,
		}})

		req, _ := createRequestBody(t, "", 0)
		resp := env.post(t, "/api/public/secrets", req, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestErrorBodiesAreTerse(t *testing.T) {
	env := newTestEnv(t, testOpts{})

	goodToken := base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{1}, envelope.ClaimTokenSize))
	resp := env.post(t, "/api/public/secrets/00000000-0000-4000-8000-000000000000/claim",
		api.ClaimSecretRequest{Claim: goodToken}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	errBody := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "secret not found", errBody.Error)
}
