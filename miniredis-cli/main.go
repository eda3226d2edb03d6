// =============================================================================
// main.go - miniredis Command-Line Client
// =============================================================================
//
// Entry point for the `miniredis` tool. It loads a .env file when one is
// present, turns SIGINT/SIGTERM into context cancellation and runs the
// urfave/cli application defined in commands.go. Without a subcommand the
// interactive REPL starts.
//
// A first signal cancels the running command so it can disconnect cleanly;
// a second one exits immediately.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

const (
	version = "0.3.0"
	appName = "miniredis"
)

func fullTitle() string {
	return fmt.Sprintf("%s v%s (Go)", appName, version)
}

func welcomeBanner() string {
	return fmt.Sprintf(`%s - Redis command-line client
Type '.help' for available commands.
Type '.quit' to exit.
`, fullTitle())
}

func printError(w io.Writer, message string) {
	fmt.Fprintf(w, "Error: %s\n", message)
}

// loadDotEnv loads .env from the working directory. A missing file is not
// an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr)
		cancel()
		<-sigCh
		os.Exit(130)
	}()
}

func main() {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring .env: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		printError(os.Stderr, err.Error())
		os.Exit(1)
	}
}
