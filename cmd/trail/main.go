package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/signet-labs/authrepo-signing-backend/cmd/flags"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/signet-labs/authrepo-signing-backend/revstore"
	"github.com/signet-labs/authrepo-signing-backend/trail"
	"github.com/urfave/cli/v2"
)

var sinceFlag = &cli.StringFlag{
	Name:  "since",
	Usage: "walk revisions after this commit hash (exclusive)",
}

var untilFlag = &cli.StringFlag{
	Name:  "until",
	Usage: "walk revisions up to this commit hash (inclusive)",
}

func main() {
	app := &cli.App{
		Name:  "trail",
		Usage: "Reconstruct dependent-repository commit timelines from an authentication repository",
		Flags: append(append([]cli.Flag{sinceFlag, untilFlag}, flags.StoreFlags...),
			append(flags.CommonFlags, flags.LogServiceFlagFn("trail"))...),
		Action: runWalk,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runWalk(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	storeURIs := cCtx.StringSlice(flags.StoreFlag.Name)
	if len(storeURIs) == 0 {
		return errors.New("at least one --store mirror is required")
	}

	var since, until interfaces.Revision
	var err error
	if s := cCtx.String(sinceFlag.Name); s != "" {
		if since, err = interfaces.NewRevisionFromHex(s); err != nil {
			return err
		}
	}
	if u := cCtx.String(untilFlag.Name); u != "" {
		if until, err = interfaces.NewRevisionFromHex(u); err != nil {
			return err
		}
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

	walker := trail.NewWalker(store,
		cCtx.String(flags.MetadataPathFlag.Name),
		cCtx.String(flags.TargetsPathFlag.Name),
		logger)

	timelines, err := walker.WalkRange(context.Background(), since, until)
	if err != nil {
		logger.Error("Timeline walk failed", "err", err)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(timelines)
}
