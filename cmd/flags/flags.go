package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/signet-labs/authrepo-signing-backend/common"
	"github.com/signet-labs/authrepo-signing-backend/httpserver"
	"github.com/signet-labs/authrepo-signing-backend/revstore"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

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

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	enablePprof := cCtx.Bool("pprof")
	drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var StoreFlag = &cli.StringSliceFlag{
	Name:  "store",
	Usage: "revision store mirror URI (github://owner/repo, ipfs://host:port/?manifest=CID, s3://bucket/prefix, file:///path, dns://domain). Repeatable; mirrors are tried in order",
}

var MetadataPathFlag = &cli.StringFlag{
	Name:  "metadata-path",
	Value: "metadata",
	Usage: "repository-relative directory holding role metadata",
}

var TargetsPathFlag = &cli.StringFlag{
	Name:  "targets-path",
	Value: "targets",
	Usage: "repository-relative directory holding target descriptors",
}

var ResolverAddrFlag = &cli.StringFlag{
	Name:  "resolver-addr",
	Value: revstore.DefaultResolverAddr,
	Usage: "DNS resolver used to expand dns:// mirror lists",
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

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
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

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var StoreFlags = []cli.Flag{
	StoreFlag,
	MetadataPathFlag,
	TargetsPathFlag,
	ResolverAddrFlag,
}
