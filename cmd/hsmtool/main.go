package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/signet-labs/authrepo-signing-backend/cmd/flags"
	"github.com/signet-labs/authrepo-signing-backend/cryptoutils"
	"github.com/signet-labs/authrepo-signing-backend/hsm"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/signet-labs/authrepo-signing-backend/keysource"
	"github.com/signet-labs/authrepo-signing-backend/registry"
	"github.com/signet-labs/authrepo-signing-backend/revstore"
	"github.com/urfave/cli/v2"
)

var flagSerial = &cli.UintFlag{
	Name:  "serial",
	Usage: "restrict the operation to the token with this serial number",
}

var flagSlot = &cli.StringFlag{
	Name:  "slot",
	Value: hsm.SlotSignature.Name,
	Usage: "key slot to operate on (signature, authentication, key-management, card-authentication)",
}

var flagCommonName = &cli.StringFlag{
	Name:     "common-name",
	Usage:    "subject common name for the slot certificate",
	Required: true,
}

var flagCertValidDays = &cli.IntFlag{
	Name:  "cert-valid-days",
	Value: hsm.DefaultCertValidDays,
	Usage: "certificate validity window in days",
}

var flagPINRetries = &cli.IntFlag{
	Name:  "pin-retries",
	Usage: "hardware PIN retry counter. Zero keeps the device default",
}

var flagPUKRetries = &cli.IntFlag{
	Name:  "puk-retries",
	Usage: "hardware PUK retry counter. Zero keeps the device default",
}

var flagKeyFile = &cli.StringFlag{
	Name:  "key-file",
	Usage: "import this PEM or sealed private key instead of generating fresh material",
}

var flagEscrowShares = &cli.IntFlag{
	Name:  "escrow-shares",
	Usage: "split the management key into this many escrow shares. Zero prints the key instead",
}

var flagEscrowThreshold = &cli.IntFlag{
	Name:  "escrow-threshold",
	Value: 2,
	Usage: "shares required to reconstruct the management key",
}

var flagRole = &cli.StringFlag{
	Name:  "role",
	Usage: "require the token's key to be an authorized signer for this role",
}

var flagInputFile = &cli.StringFlag{
	Name:     "in",
	Usage:    "file holding the data to sign",
	Required: true,
}

var flagOutputFile = &cli.StringFlag{
	Name:  "out",
	Usage: "file to write the output to. Empty writes to stdout",
}

var flagRetry = &cli.BoolFlag{
	Name:  "retry",
	Usage: "prompt for token insertion and rescan instead of failing when no eligible token is inserted",
}

func main() {
	app := &cli.App{
		Name:           "hsmtool",
		Usage:          "Provision and use hardware signing tokens",
		DefaultCommand: "list",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List inserted tokens and their occupied slots",
				Flags:  flags.CommonFlags,
				Action: runList,
			},
			{
				Name:  "setup",
				Usage: "Provision a token from factory state",
				Flags: append([]cli.Flag{
					flagSerial,
					flagSlot,
					flagCommonName,
					flagCertValidDays,
					flagPINRetries,
					flagPUKRetries,
					flagKeyFile,
					flagEscrowShares,
					flagEscrowThreshold,
				}, flags.CommonFlags...),
				Action: runSetup,
			},
			{
				Name:  "sign",
				Usage: "Sign a file with a token-held key",
				Flags: append(append([]cli.Flag{
					flagSerial,
					flagSlot,
					flagRole,
					flagInputFile,
					flagOutputFile,
					flagRetry,
				}, flags.StoreFlags...), flags.CommonFlags...),
				Action: runSign,
			},
			{
				Name:  "export",
				Usage: "Export a slot's public key and certificate as PEM",
				Flags: append([]cli.Flag{
					flagSerial,
					flagSlot,
					flagOutputFile,
				}, flags.CommonFlags...),
				Action: runExport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runList(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	discovery := hsm.NewDiscovery(hsm.NewPIVTransport(logger), hsm.NewKeyCache(), hsm.NewTerminalPrompter(), logger)
	tokens, err := discovery.ListTokens(context.Background())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tokens)
}

func runSetup(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := context.Background()
	prompter := hsm.NewTerminalPrompter()

	transport := hsm.NewPIVTransport(logger)
	token, err := openToken(transport, uint32(cCtx.Uint(flagSerial.Name)))
	if err != nil {
		return err
	}
	defer token.Close()

	slot, err := parseSlotFlag(cCtx)
	if err != nil {
		return err
	}

	cfg := hsm.SetupConfig{
		CommonName:    cCtx.String(flagCommonName.Name),
		CertValidDays: cCtx.Int(flagCertValidDays.Name),
		PINRetries:    cCtx.Int(flagPINRetries.Name),
		PUKRetries:    cCtx.Int(flagPUKRetries.Name),
		Slot:          slot,
	}

	if keyFile := cCtx.String(flagKeyFile.Name); keyFile != "" {
		source := keysource.NewFileSource(keyFile, func(ctx context.Context) (string, error) {
			return prompter.RequestSecret(ctx, "key file passphrase")
		}, logger)
		key, err := source.Load(ctx)
		if err != nil {
			return err
		}
		cfg.Key = key
	}

	serial, err := token.Serial()
	if err != nil {
		return err
	}
	if cfg.PIN, err = prompter.ChooseNewPIN(ctx, serial); err != nil {
		return err
	}

	confirmed, err := prompter.Confirm(ctx, "Provisioning resets the token and destroys all existing keys. Continue?")
	if err != nil {
		return err
	}
	if !confirmed {
		return errors.New("setup canceled")
	}

	result, err := hsm.Setup(token, cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Provisioned token %d, slot %s\n", result.Serial, result.Slot)
	os.Stdout.Write(result.PublicKeyPEM)
	os.Stdout.Write(result.CertificatePEM)

	shares := cCtx.Int(flagEscrowShares.Name)
	if shares == 0 {
		fmt.Printf("management key: %s\n", base64.StdEncoding.EncodeToString(result.ManagementKey))
		return nil
	}

	escrow, err := hsm.SplitManagementKey(result.ManagementKey, shares, cCtx.Int(flagEscrowThreshold.Name))
	if err != nil {
		return err
	}
	for i, share := range escrow {
		fmt.Printf("management key share %d/%d: %s\n", i+1, shares, base64.StdEncoding.EncodeToString(share))
	}
	return nil
}

func runSign(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := context.Background()

	data, err := os.ReadFile(cCtx.String(flagInputFile.Name))
	if err != nil {
		return err
	}

	slot, err := parseSlotFlag(cCtx)
	if err != nil {
		return err
	}

	opts := hsm.DiscoverOptions{
		Serial: uint32(cCtx.Uint(flagSerial.Name)),
		Slot:   slot,
		Retry:  cCtx.Bool(flagRetry.Name),
	}

	if role := cCtx.String(flagRole.Name); role != "" {
		reg, err := signerRegistry(cCtx, logger)
		if err != nil {
			return err
		}
		opts.Role = interfaces.RoleName(role)
		opts.Registry = reg
	}

	transport := hsm.NewPIVTransport(logger)
	discovery := hsm.NewDiscovery(transport, hsm.NewKeyCache(), hsm.NewTerminalPrompter(), logger)
	signer, err := discovery.FindSigner(ctx, opts)
	if err != nil {
		return err
	}

	token, err := openToken(transport, signer.Serial)
	if err != nil {
		return err
	}
	session := hsm.NewSession(token, logger)
	defer session.Close()

	signature, err := session.Sign(signer.Slot, signer.PIN, data)
	if err != nil {
		return err
	}

	return writeOutput(cCtx, []byte(base64.StdEncoding.EncodeToString(signature)+"\n"))
}

func runExport(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	slot, err := parseSlotFlag(cCtx)
	if err != nil {
		return err
	}

	transport := hsm.NewPIVTransport(logger)
	token, err := openToken(transport, uint32(cCtx.Uint(flagSerial.Name)))
	if err != nil {
		return err
	}
	session := hsm.NewSession(token, logger)
	defer session.Close()

	pubPEM, err := session.PublicKeyPEM(slot)
	if err != nil {
		return err
	}
	cert, err := session.Certificate(slot)
	if err != nil {
		return err
	}

	return writeOutput(cCtx, append(pubPEM, cryptoutils.CertificatePEM(cert)...))
}

// openToken picks the inserted token to operate on. A zero serial
// requires exactly one inserted token.
func openToken(transport hsm.Transport, serial uint32) (hsm.Token, error) {
	tokens, err := transport.Tokens()
	if err != nil {
		return nil, err
	}

	var match hsm.Token
	for _, token := range tokens {
		s, err := token.Serial()
		if err != nil {
			_ = token.Close()
			continue
		}
		if serial != 0 && s != serial {
			_ = token.Close()
			continue
		}
		if match != nil {
			_ = match.Close()
			_ = token.Close()
			return nil, errors.New("multiple tokens inserted, pass --serial to pick one")
		}
		match = token
	}

	if match == nil {
		return nil, interfaces.ErrNoEligibleToken
	}
	return match, nil
}

func parseSlotFlag(cCtx *cli.Context) (hsm.Slot, error) {
	return hsm.ParseSlot(cCtx.String(flagSlot.Name))
}

// signerRegistry builds a registry over the configured store mirrors.
func signerRegistry(cCtx *cli.Context, logger *slog.Logger) (interfaces.SignerRegistry, error) {
	storeURIs := cCtx.StringSlice(flags.StoreFlag.Name)
	if len(storeURIs) == 0 {
		return nil, errors.New("--role requires at least one --store mirror")
	}

	locations := make([]interfaces.StoreLocation, 0, len(storeURIs))
	for _, uri := range storeURIs {
		locations = append(locations, interfaces.StoreLocation(uri))
	}

	resolver := revstore.NewMirrorResolver(cCtx.String(flags.ResolverAddrFlag.Name), logger)
	factory := revstore.NewFactory(logger, resolver)
	store, err := factory.CreateMultiStore(locations)
	if err != nil {
		return nil, err
	}

	return registry.NewMetadataSignerRegistry(store, cCtx.String(flags.MetadataPathFlag.Name), logger), nil
}

func writeOutput(cCtx *cli.Context, data []byte) error {
	if out := cCtx.String(flagOutputFile.Name); out != "" {
		return os.WriteFile(out, data, 0644)
	}
	_, err := os.Stdout.Write(data)
	return err
}
