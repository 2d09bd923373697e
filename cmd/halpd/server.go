// server.go - HTTP surface of the credential daemon.
//
// Wire conventions: field elements are 64-char lower-case hex without 0x,
// compressed G1 points 96 hex chars, opaque blobs base64. Error statuses
// follow the verification error taxonomy.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/zunaedsazzad/halp-core/internal/auth"
	"github.com/zunaedsazzad/halp-core/internal/hybrid"
	"github.com/zunaedsazzad/halp-core/internal/issuance"
	"github.com/zunaedsazzad/halp-core/internal/registry"
)

// sessionLifetime bounds the token a successful verification mints.
const sessionLifetime = time.Hour

type server struct {
	cfg        *Config
	log        zerolog.Logger
	issuer     *issuance.Issuer
	registry   *registry.Registry
	challenges *auth.ChallengeStore
	verifier   *auth.Verifier
	health     *HealthChecker
	metrics    *MetricsCollector
	limiter    *ClientRateLimiter
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/challenge", s.handleChallenge)
	mux.HandleFunc("/verify", s.handleVerify)
	mux.HandleFunc("/registry/root", s.handleRegistryRoot)
	mux.HandleFunc("/registry/proof", s.handleRegistryProof)
	mux.HandleFunc("/registry/check", s.handleRegistryCheck)
	mux.HandleFunc("/registry/register", s.handleRegistryRegister)
	mux.HandleFunc("/issuance/credential", s.handleIssuance)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return s.withMiddleware(mux)
}

// withMiddleware applies request logging and per-client rate limiting.
func (s *server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientID(r)
		if !s.limiter.Allow(client) {
			s.metrics.RecordError("rate_limited")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("client", client).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleChallenge issues a session challenge. GET serves the legacy
// default-domain form.
func (s *server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var domain string
	switch r.Method {
	case http.MethodGet:
		domain = "default"
	case http.MethodPost:
		var body struct {
			Domain         string `json:"domain"`
			CredentialType string `json:"credentialType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Domain == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidInput"})
			return
		}
		domain = body.Domain
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ch, err := s.challenges.Issue(domain)
	if err != nil {
		s.log.Error().Err(err).Msg("challenge issuance failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal"})
		return
	}
	s.metrics.RecordChallenge(domain)
	writeJSON(w, http.StatusOK, ch)
}

// handleVerify runs the full hybrid verification pipeline.
func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req auth.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidInput"})
		return
	}

	start := time.Now()
	session, details, err := s.verifier.VerifyHybridAuth(&req)
	if err != nil {
		kind := auth.KindOf(err)
		s.metrics.RecordVerificationFailure(kind.String())
		s.log.Warn().
			Str("kind", kind.String()).
			Str("domain", req.Domain).
			Msg("verification rejected")
		writeJSON(w, kind.HTTPStatus(), map[string]interface{}{
			"valid":               false,
			"error":               kind.String(),
			"verificationDetails": details,
		})
		return
	}

	token, err := sessionToken()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal"})
		return
	}
	s.metrics.RecordVerification(req.Domain, time.Since(start))
	s.metrics.RecordRegistrySize(s.registry.LeafCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":               true,
		"sessionToken":        token,
		"expiresAt":           time.Now().Add(sessionLifetime).UnixMilli(),
		"pseudonym":           session.Pseudonym,
		"domain":              session.Domain,
		"verificationDetails": details,
	})
}

// handleRegistryRoot serves the current tree root.
func (s *server) handleRegistryRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	root := s.registry.Root()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"root":      hybrid.FrBNToHex(root),
		"height":    s.registry.Height(),
		"leafCount": s.registry.LeafCount(),
		"updatedAt": s.registry.UpdatedAt().UTC().Format(time.RFC3339),
	})
}

// handleRegistryProof serves a non-membership proof for a leaf value.
func (s *server) handleRegistryProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Leaf      string `json:"leaf"`
		ProofType string `json:"proofType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidInput"})
		return
	}
	leaf, err := hybrid.FrBNFromHex(body.Leaf)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidScalar"})
		return
	}

	proof, err := s.registry.NonMembershipProof(leaf)
	if err != nil {
		if errors.Is(err, registry.ErrIsPresent) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "NullifierReused"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal"})
		return
	}

	siblings := make([]string, len(proof.Siblings))
	for i := range proof.Siblings {
		siblings[i] = hybrid.FrBNToHex(proof.Siblings[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaf":                   body.Leaf,
		"root":                   hybrid.FrBNToHex(proof.Root),
		"siblings":               siblings,
		"pathIndices":            proof.PathIndices,
		"leafIndex":              proof.LeafIndex,
		"lowNullifier":           hybrid.FrBNToHex(proof.LowValue),
		"lowNullifierNextValue":  hybrid.FrBNToHex(proof.LowNextValue),
		"lowNullifierNextIdx":    proof.LowNextIdx,
	})
}

// handleRegistryCheck reports whether a nullifier has been used.
func (s *server) handleRegistryCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Nullifier string `json:"nullifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidInput"})
		return
	}
	v, err := hybrid.FrBNFromHex(body.Nullifier)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidScalar"})
		return
	}

	resp := map[string]interface{}{"used": s.registry.Has(v)}
	if rec, ok := s.registry.Record(v); ok {
		resp["usedAt"] = rec.Timestamp.UTC().Format(time.RFC3339)
		resp["domain"] = rec.Domain
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRegistryRegister inserts a nullifier directly. The verify
// pipeline registers on its own; this endpoint serves federated
// registries.
func (s *server) handleRegistryRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Nullifier string `json:"nullifier"`
		Domain    string `json:"domain"`
		Pseudonym string `json:"pseudonym"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidInput"})
		return
	}
	v, err := hybrid.FrBNFromHex(body.Nullifier)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidScalar"})
		return
	}
	at := time.Now().UTC()
	if body.Timestamp > 0 {
		at = time.UnixMilli(body.Timestamp).UTC()
	}

	idx, newRoot, err := s.registry.Insert(v, body.Domain, body.Pseudonym, at)
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyPresent) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"success": false,
				"error":   "NullifierReused",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "InvalidInput",
		})
		return
	}
	s.metrics.RecordRegistrySize(s.registry.LeafCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"treeIndex": idx,
		"newRoot":   hybrid.FrBNToHex(newRoot),
	})
}

// handleIssuance runs anonymous credential issuance.
func (s *server) handleIssuance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req issuance.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidInput"})
		return
	}

	issued, err := s.issuer.Issue(&req)
	if err != nil {
		status := http.StatusBadRequest
		kind := "InvalidInput"
		if errors.Is(err, issuance.ErrProofRejected) {
			status = http.StatusUnauthorized
			kind = "InvalidProof"
		}
		s.metrics.RecordError("issuance_" + kind)
		s.log.Warn().Str("kind", kind).Str("type", req.CredentialType).Msg("issuance rejected")
		writeJSON(w, status, map[string]string{"error": kind})
		return
	}
	s.metrics.RecordIssuance(req.CredentialType)
	writeJSON(w, http.StatusOK, issued)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.GetMetricsSummary())
}

func sessionToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
