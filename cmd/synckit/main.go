package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/iudanet/synckit/internal/config"
	"github.com/iudanet/synckit/pkg/crypto/software"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	ctx := context.Background()
	command := args[0]

	switch command {
	case "identity":
		if err := runIdentity(ctx, args[1:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "demo":
		if err := runDemo(ctx, args[1:], cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runIdentity генерирует идентичность узла и сохраняет ее в keystore,
// защищенный passphrase.
func runIdentity(ctx context.Context, args []string, cfg *config.Config) error {
	fs := flag.NewFlagSet("identity", flag.ExitOnError)
	out := fs.String("out", cfg.KeystorePath, "Path to the keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	provider := software.New()
	identity, err := provider.GenerateIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}

	passphrase, err := readPassword("Keystore passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Repeat passphrase: ")
	if err != nil {
		return err
	}
	if passphrase != confirm {
		return fmt.Errorf("passphrases do not match")
	}

	if err := provider.SaveKeystore(*out, passphrase); err != nil {
		return err
	}

	fmt.Printf("DID:      %s\n", identity.DID)
	fmt.Printf("Keystore: %s\n", *out)
	return nil
}

// readPassword читает passphrase с терминала без эха.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}

func printUsage() {
	fmt.Println("synckit - distributed synchronization toolkit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  synckit identity [-out file]   Generate a node identity keystore")
	fmt.Println("  synckit demo [-db file]        Run a two-node loopback sync demo")
	fmt.Println("  synckit version                Show version information")
}

func printVersion() {
	fmt.Printf("synckit\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
