package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"

	"github.com/hushlink/secret-sharing-backend/apikey"
	"github.com/hushlink/secret-sharing-backend/cmd/flags"
	"github.com/hushlink/secret-sharing-backend/httpserver"
	"github.com/hushlink/secret-sharing-backend/interfaces"
	"github.com/hushlink/secret-sharing-backend/quota"
	"github.com/hushlink/secret-sharing-backend/ratelimit"
	"github.com/hushlink/secret-sharing-backend/storage"
)

// secretEnv holds configuration too sensitive for CLI flags: the store DSN
// may embed a database password and the pepper keys every API key digest.
// Read from SECRETSHARE_STORE_URI and SECRETSHARE_API_PEPPER.
type secretEnv struct {
	StoreURI  string `envconfig:"STORE_URI"`
	APIPepper string `envconfig:"API_PEPPER"`
}

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.BaseURLFlag,
	flags.StoreURIFlag,
	flags.KeyStoreURIFlag,
	flags.MaxBodyBytesFlag,
	flags.JanitorIntervalFlag,
	flags.PublicMaxSecretsFlag,
	flags.PublicMaxBytesFlag,
	flags.AuthedMaxSecretsFlag,
	flags.AuthedMaxBytesFlag,
	flags.PublicCreateRateFlag,
	flags.PublicCreateBurstFlag,
	flags.AuthedCreateRateFlag,
	flags.AuthedCreateBurstFlag,
	flags.ClaimRateFlag,
	flags.ClaimBurstFlag,
	flags.BurnRateFlag,
	flags.BurnBurstFlag,
	flags.RateLimitEntriesFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "secret-sharing-server",
		Usage: "Serve the one-time secret sharing API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			var env secretEnv
			if err := envconfig.Process("secretshare", &env); err != nil {
				logger.Error("Failed to read environment config", "err", err)
				return err
			}

			storeURI := cCtx.String(flags.StoreURIFlag.Name)
			if env.StoreURI != "" {
				storeURI = env.StoreURI
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			store, err := storage.NewStoreFactory(logger).StoreFor(ctx, storeURI)
			cancel()
			if err != nil {
				logger.Error("Failed to create secret store", "err", err)
				return err
			}
			defer store.Close()
			logger.Info("Secret store ready", "backend", store.Name())

			keyStore, err := apikey.KeyStoreFor(cCtx.String(flags.KeyStoreURIFlag.Name), logger)
			if err != nil {
				logger.Error("Failed to create API key store", "err", err)
				return err
			}
			if env.APIPepper == "" {
				logger.Warn("SECRETSHARE_API_PEPPER is not set; all authenticated requests will be rejected")
			}
			verifier := apikey.NewVerifier([]byte(env.APIPepper), keyStore, logger)

			quotaCfg := quota.Config{
				Public: interfaces.TierLimits{
					MaxActiveSecrets: cCtx.Int(flags.PublicMaxSecretsFlag.Name),
					MaxActiveBytes:   cCtx.Int64(flags.PublicMaxBytesFlag.Name),
				},
				Authenticated: interfaces.TierLimits{
					MaxActiveSecrets: cCtx.Int(flags.AuthedMaxSecretsFlag.Name),
					MaxActiveBytes:   cCtx.Int64(flags.AuthedMaxBytesFlag.Name),
				},
			}

			limiterCfg := ratelimit.Config{
				Limits: map[ratelimit.Op]ratelimit.Limit{
					ratelimit.OpPublicCreate: {
						Rate:  cCtx.Float64(flags.PublicCreateRateFlag.Name),
						Burst: cCtx.Int(flags.PublicCreateBurstFlag.Name),
					},
					ratelimit.OpAuthedCreate: {
						Rate:  cCtx.Float64(flags.AuthedCreateRateFlag.Name),
						Burst: cCtx.Int(flags.AuthedCreateBurstFlag.Name),
					},
					ratelimit.OpClaim: {
						Rate:  cCtx.Float64(flags.ClaimRateFlag.Name),
						Burst: cCtx.Int(flags.ClaimBurstFlag.Name),
					},
					ratelimit.OpBurn: {
						Rate:  cCtx.Float64(flags.BurnRateFlag.Name),
						Burst: cCtx.Int(flags.BurnBurstFlag.Name),
					},
				},
				MaxEntries: cCtx.Int(flags.RateLimitEntriesFlag.Name),
			}

			handler := httpserver.NewHandler(&httpserver.HandlerConfig{
				Store:        store,
				Accountant:   quota.NewAccountant(store, quotaCfg, logger),
				Limiter:      ratelimit.New(limiterCfg),
				Verifier:     verifier,
				BaseURL:      cCtx.String(flags.BaseURLFlag.Name),
				MaxBodyBytes: cCtx.Int64(flags.MaxBodyBytesFlag.Name),
				Log:          logger,
			})

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			janitor := storage.NewJanitor(store, cCtx.Duration(flags.JanitorIntervalFlag.Name), logger,
				func(deleted int64) {
					server.Metrics().SecretsExpired.Add(float64(deleted))
				})
			janitor.Start()
			defer janitor.Stop()

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
