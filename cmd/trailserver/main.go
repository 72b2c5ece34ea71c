package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/signet-labs/authrepo-signing-backend/cmd/flags"
	"github.com/signet-labs/authrepo-signing-backend/httpserver"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/signet-labs/authrepo-signing-backend/revstore"
	"github.com/urfave/cli/v2"
)

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

func main() {
	app := &cli.App{
		Name:  "trailserver",
		Usage: "Serve dependent-repository commit timelines over HTTP",
		Flags: append(append([]cli.Flag{listenAddrFlag, flags.PprofFlag, flags.DrainSecondsFlag}, flags.StoreFlags...),
			append(flags.CommonFlags, flags.LogServiceFlagFn("trailserver"))...),
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	storeURIs := cCtx.StringSlice(flags.StoreFlag.Name)
	if len(storeURIs) == 0 {
		return errors.New("at least one --store mirror is required")
	}

	locations := make([]interfaces.StoreLocation, 0, len(storeURIs))
	for _, uri := range storeURIs {
		locations = append(locations, interfaces.StoreLocation(uri))
	}

	resolver := revstore.NewMirrorResolver(cCtx.String(flags.ResolverAddrFlag.Name), logger)
	factory := revstore.NewFactory(logger, resolver)
	store, err := factory.CreateMultiStore(locations)
	if err != nil {
		logger.Error("Failed to create revision store", "err", err)
		return err
	}

	handler := httpserver.NewHandler(store,
		cCtx.String(flags.MetadataPathFlag.Name),
		cCtx.String(flags.TargetsPathFlag.Name),
		logger)

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name))
	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}
