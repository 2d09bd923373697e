// main.go - Entry point for the credential daemon.
//
// Boot order: config, logger, public parameters, issuer keys, Groth16
// runtime (compile + setup-or-load), registry, challenge store, HTTP
// server. SIGINT/SIGTERM drain the server gracefully.

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zunaedsazzad/halp-core/internal/auth"
	"github.com/zunaedsazzad/halp-core/internal/bbs"
	"github.com/zunaedsazzad/halp-core/internal/circuit"
	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/hybrid"
	"github.com/zunaedsazzad/halp-core/internal/issuance"
	"github.com/zunaedsazzad/halp-core/internal/params"
	"github.com/zunaedsazzad/halp-core/internal/registry"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "halpd.json", "path to the configuration file")
	listenAddr := flag.String("listen", "", "listen address override")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	log.Info().Str("version", version).Msg("starting halpd")

	pp, err := params.LoadOrGenerate(cfg.ParamsPath, cfg.MaxAttributes)
	if err != nil {
		log.Fatal().Err(err).Msg("loading public parameters")
	}
	log.Info().Int("max_attributes", pp.MaxAttributes).Msg("public parameters ready")

	keys, err := loadOrCreateIssuerKeys(cfg.IssuerKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading issuer keys")
	}

	metrics := NewMetricsCollector()

	compileStart := time.Now()
	runtime, err := circuit.NewRuntime(cfg.ProvingKeyPath, cfg.VerifyingKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("building circuit runtime")
	}
	metrics.RecordCircuitCompile(time.Since(compileStart))
	log.Info().Dur("elapsed", time.Since(compileStart)).Msg("circuit runtime ready")

	reg := registry.New(cfg.RecentRootsWindow)
	challenges := auth.NewChallengeStore(
		time.Duration(cfg.ChallengeTTLSec)*time.Second,
		time.Duration(cfg.SweepIntervalSec)*time.Second,
		func() string { return hybrid.FrBNToHex(reg.Root()) },
	)
	defer challenges.Close()

	health := NewHealthChecker(version)
	health.RegisterComponent("registry", func() error {
		reg.Root()
		return nil
	})
	health.RegisterComponent("challenges", func() error {
		challenges.Len()
		return nil
	})
	health.RegisterComponent("parameters", func() error {
		return params.Verify(pp)
	})

	srv := &server{
		cfg:        cfg,
		log:        log,
		issuer:     issuance.NewIssuer(cfg.IssuerDID, pp, keys),
		registry:   reg,
		challenges: challenges,
		verifier:   auth.NewVerifier(challenges, runtime, reg),
		health:     health,
		metrics:    metrics,
		limiter:    NewClientRateLimiter(cfg.RateLimitTokens, cfg.RateLimitRefill, time.Second),
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.routes(),
		ReadTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

// issuerKeyFile is the on-disk form of the BBS+ issuer key pair.
type issuerKeyFile struct {
	PrivateKey string `json:"privateKey"` // 64-char hex scalar
	PublicKey  string `json:"publicKey"`  // hex compressed G2
}

// loadOrCreateIssuerKeys loads the BBS+ key pair from disk, generating
// and saving a fresh one on first boot.
func loadOrCreateIssuerKeys(path string) (*bbs.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var file issuerKeyFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing issuer key file: %w", err)
		}
		xBytes, err := hex.DecodeString(file.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parsing issuer private key: %w", err)
		}
		x, err := curve.ScalarFromBytes(xBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing issuer private key: %w", err)
		}
		return bbs.KeyPairFromPrivate(x), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading issuer key file: %w", err)
	}

	keys, err := bbs.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	file := issuerKeyFile{
		PrivateKey: hex.EncodeToString(curve.ScalarToBytes(&keys.Private.X)),
		PublicKey:  hex.EncodeToString(keys.Public.Bytes()),
	}
	out, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return nil, fmt.Errorf("writing issuer key file: %w", err)
	}
	return keys, nil
}
