package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hushlink/secret-sharing-backend/api"
	"github.com/hushlink/secret-sharing-backend/apikey"
	"github.com/hushlink/secret-sharing-backend/envelope"
	"github.com/hushlink/secret-sharing-backend/interfaces"
	"github.com/hushlink/secret-sharing-backend/metrics"
	"github.com/hushlink/secret-sharing-backend/quota"
	"github.com/hushlink/secret-sharing-backend/ratelimit"
)

// DefaultMaxBodyBytes bounds request bodies when the handler config leaves
// MaxBodyBytes unset (1MB).
const DefaultMaxBodyBytes = 1024 * 1024

// RequestError pairs an HTTP status code with the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// HandlerConfig collects the handler's dependencies.
type HandlerConfig struct {
	Store      interfaces.SecretStore
	Accountant *quota.Accountant
	Limiter    *ratelimit.Limiter
	Verifier   *apikey.Verifier

	// BaseURL is the externally visible origin used to build share URLs,
	// e.g. "https://secrets.example.com".
	BaseURL string

	// MaxBodyBytes bounds request bodies; zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	Log *slog.Logger
}

// Handler processes secret lifecycle requests. The server never sees
// plaintext, URL keys or claim tokens in storable form: it persists opaque
// envelopes keyed by claim hash and destroys them on first valid claim.
type Handler struct {
	store      interfaces.SecretStore
	accountant *quota.Accountant
	limiter    *ratelimit.Limiter
	verifier   *apikey.Verifier
	baseURL    string
	maxBody    int64
	log        *slog.Logger

	metrics *metrics.MetricsServer
}

// NewHandler creates a handler from its config.
func NewHandler(cfg *HandlerConfig) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		store:      cfg.Store,
		accountant: cfg.Accountant,
		limiter:    cfg.Limiter,
		verifier:   cfg.Verifier,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxBody:    maxBody,
		log:        cfg.Log,
	}
}

// HandleCreatePublic stores a secret for an anonymous creator.
//
// URL format: POST /api/public/secrets
func (h *Handler) HandleCreatePublic(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.limiter.Allow(ratelimit.OpPublicCreate, ip) {
		h.countRateLimited()
		h.writeError(w, &RequestError{StatusCode: http.StatusTooManyRequests, Err: interfaces.ErrRateLimited})
		return
	}

	h.handleCreate(w, r, interfaces.OwnerKeyForIP(ip), interfaces.TierPublic)
}

// HandleCreateAuthed stores a secret for an API-key authenticated creator.
// Authentication runs first so the rate limit can be scoped to the key
// prefix rather than the client address.
//
// URL format: POST /api/authed/secrets
// Required headers:
//   - Authorization: Bearer <prefix>.<secret>
func (h *Handler) HandleCreateAuthed(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !h.limiter.Allow(ratelimit.OpAuthedCreate, identity.Prefix) {
		h.countRateLimited()
		h.writeError(w, &RequestError{StatusCode: http.StatusTooManyRequests, Err: interfaces.ErrRateLimited})
		return
	}

	h.handleCreate(w, r, identity.OwnerKey, interfaces.TierAuthenticated)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, owner interfaces.OwnerKey, tier interfaces.Tier) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req api.CreateSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: interfaces.ErrValidation})
			return
		}
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: interfaces.ErrValidation})
		return
	}

	// Structural validation only. The envelope is stored byte-identical to
	// what the client sent, so claim returns exactly what create saw.
	if _, err := envelope.Parse(req.Envelope); err != nil {
		h.log.Debug("Create rejected: invalid envelope", "err", err)
		h.writeError(w, err)
		return
	}

	claimHash, err := interfaces.NewClaimHashFromString(req.ClaimHash)
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: interfaces.ErrValidation})
		return
	}

	if err := h.accountant.Admit(r.Context(), owner, tier, int64(len(req.Envelope)), time.Now()); err != nil {
		h.countQuotaRejected(err)
		h.writeError(w, err)
		return
	}

	id, expiresAt, err := h.store.Create(r.Context(), req.Envelope, claimHash, req.TTLSeconds, owner)
	if err != nil {
		h.log.Error("Failed to store secret", "err", err, slog.String("tier", tier.String()))
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SecretsCreated.Inc()
	}

	h.writeJSON(w, http.StatusCreated, api.CreateSecretResponse{
		ID:        id.String(),
		ShareURL:  h.baseURL + "/s/" + id.String(),
		ExpiresAt: expiresAt,
	})
}

// HandleClaim destroys a secret and returns its envelope, exactly once.
// Every failure is a uniform 404 so callers cannot distinguish a wrong
// token from an expired, claimed or never-existing record.
//
// URL format: POST /api/public/secrets/{id}/claim
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(ratelimit.OpClaim, clientIP(r)) {
		h.countRateLimited()
		h.writeError(w, &RequestError{StatusCode: http.StatusTooManyRequests, Err: interfaces.ErrRateLimited})
		return
	}

	id := interfaces.SecretID(r.PathValue("id"))
	if id == "" {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: interfaces.ErrValidation})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req api.ClaimSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: interfaces.ErrValidation})
		return
	}

	claimToken, err := base64.RawURLEncoding.DecodeString(req.Claim)
	if err != nil || len(claimToken) != envelope.ClaimTokenSize {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: interfaces.ErrValidation})
		return
	}

	env, expiresAt, err := h.store.Claim(r.Context(), id, claimToken, time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SecretsClaimed.Inc()
	}

	h.writeJSON(w, http.StatusOK, api.ClaimSecretResponse{Envelope: env, ExpiresAt: expiresAt})
}

// HandleBurn lets an authenticated owner destroy their secret without
// claiming it. Ownership mismatch and absence are the same 404.
//
// URL format: POST /api/authed/secrets/{id}/burn
// Required headers:
//   - Authorization: Bearer <prefix>.<secret>
func (h *Handler) HandleBurn(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(ratelimit.OpBurn, clientIP(r)) {
		h.countRateLimited()
		h.writeError(w, &RequestError{StatusCode: http.StatusTooManyRequests, Err: interfaces.ErrRateLimited})
		return
	}

	identity, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	id := interfaces.SecretID(r.PathValue("id"))
	if id == "" {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: interfaces.ErrValidation})
		return
	}

	if err := h.store.Burn(r.Context(), id, identity.OwnerKey); err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SecretsBurned.Inc()
	}

	h.writeJSON(w, http.StatusOK, api.BurnSecretResponse{OK: true})
}

func (h *Handler) authenticate(r *http.Request) (*apikey.Identity, error) {
	cred, err := apikey.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return h.verifier.Verify(r.Context(), cred)
}

// writeError maps an error onto a status code and a terse JSON body. The
// body never carries backend details or record state.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	var reqErr *RequestError
	var quotaErr *interfaces.QuotaExceededError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.StatusCode
		msg = reqErr.Err.Error()
	case errors.Is(err, interfaces.ErrInvalidEnvelope):
		status = http.StatusBadRequest
		msg = interfaces.ErrInvalidEnvelope.Error()
	case errors.Is(err, interfaces.ErrValidation):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, interfaces.ErrUnauthorized):
		status = http.StatusUnauthorized
		msg = interfaces.ErrUnauthorized.Error()
	case errors.Is(err, interfaces.ErrSecretNotFound):
		status = http.StatusNotFound
		msg = interfaces.ErrSecretNotFound.Error()
	case errors.As(err, &quotaErr):
		if quotaErr.Kind == interfaces.QuotaBytes {
			status = http.StatusRequestEntityTooLarge
		} else {
			status = http.StatusTooManyRequests
		}
		msg = quotaErr.Error()
	case errors.Is(err, interfaces.ErrRateLimited):
		status = http.StatusTooManyRequests
		msg = interfaces.ErrRateLimited.Error()
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
		msg = "storage unavailable"
	default:
		h.log.Error("Request failed", "err", err)
	}

	h.writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) countRateLimited() {
	if h.metrics != nil {
		h.metrics.RateLimitRejections.Inc()
	}
}

func (h *Handler) countQuotaRejected(err error) {
	if h.metrics == nil {
		return
	}
	if errors.Is(err, interfaces.ErrQuotaExceeded) {
		h.metrics.QuotaRejections.Inc()
	}
}

// clientIP extracts the caller's address, preferring the first hop of
// X-Forwarded-For when a proxy sits in front.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
