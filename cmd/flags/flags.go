// Package flags holds the CLI flags and setup helpers shared by the
// service binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/hushlink/secret-sharing-backend/common"
	"github.com/hushlink/secret-sharing-backend/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var BaseURLFlag = &cli.StringFlag{
	Name:  "base-url",
	Value: "http://127.0.0.1:8080",
	Usage: "externally visible origin used to build share URLs",
}

var StoreURIFlag = &cli.StringFlag{
	Name:  "store-uri",
	Value: "mem://",
	Usage: "secret store location: mem:// or postgres://... (DSN may also come from SECRETSHARE_STORE_URI)",
}

var KeyStoreURIFlag = &cli.StringFlag{
	Name:  "keystore-uri",
	Value: "none://",
	Usage: "API key store location: none://, file:///path/keys.json or vault://host:port/mount/path",
}

var MaxBodyBytesFlag = &cli.Int64Flag{
	Name:  "max-body-bytes",
	Value: httpserver.DefaultMaxBodyBytes,
	Usage: "maximum accepted request body size in bytes",
}

var JanitorIntervalFlag = &cli.DurationFlag{
	Name:  "janitor-interval",
	Value: time.Minute,
	Usage: "how often expired secrets are swept from storage",
}

var PublicMaxSecretsFlag = &cli.IntFlag{
	Name:  "public-max-secrets",
	Value: 10,
	Usage: "active secret cap per anonymous owner",
}

var PublicMaxBytesFlag = &cli.Int64Flag{
	Name:  "public-max-bytes",
	Value: 1 << 20,
	Usage: "active envelope byte cap per anonymous owner",
}

var AuthedMaxSecretsFlag = &cli.IntFlag{
	Name:  "authed-max-secrets",
	Value: 200,
	Usage: "active secret cap per API key",
}

var AuthedMaxBytesFlag = &cli.Int64Flag{
	Name:  "authed-max-bytes",
	Value: 64 << 20,
	Usage: "active envelope byte cap per API key",
}

var PublicCreateRateFlag = &cli.Float64Flag{
	Name:  "public-create-rate",
	Value: 0.1,
	Usage: "sustained anonymous creates per second per client IP",
}

var PublicCreateBurstFlag = &cli.IntFlag{
	Name:  "public-create-burst",
	Value: 5,
	Usage: "anonymous create burst per client IP",
}

var AuthedCreateRateFlag = &cli.Float64Flag{
	Name:  "authed-create-rate",
	Value: 1.0,
	Usage: "sustained authenticated creates per second per API key",
}

var AuthedCreateBurstFlag = &cli.IntFlag{
	Name:  "authed-create-burst",
	Value: 30,
	Usage: "authenticated create burst per API key",
}

var ClaimRateFlag = &cli.Float64Flag{
	Name:  "claim-rate",
	Value: 0.5,
	Usage: "sustained claims per second per client IP",
}

var ClaimBurstFlag = &cli.IntFlag{
	Name:  "claim-burst",
	Value: 10,
	Usage: "claim burst per client IP",
}

var BurnRateFlag = &cli.Float64Flag{
	Name:  "burn-rate",
	Value: 1.0,
	Usage: "sustained burns per second per client IP",
}

var BurnBurstFlag = &cli.IntFlag{
	Name:  "burn-burst",
	Value: 20,
	Usage: "burn burst per client IP",
}

var RateLimitEntriesFlag = &cli.IntFlag{
	Name:  "ratelimit-max-entries",
	Value: 16384,
	Usage: "maximum tracked rate-limit scope keys before idle eviction",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
