// qbcli sends requests through a qbproxy.Proxy from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/eshaffer321/qbproxy-go/pkg/qbproxy"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags
var (
	Version = "dev"
)

var (
	configPath string
	verbose    bool
	login      string
	email      string
	password   string
)

var rootCmd = &cobra.Command{
	Use:           "qbcli",
	Short:         "Send API requests through the request proxy",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "qbproxy.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests and responses to stderr")
	rootCmd.PersistentFlags().StringVar(&login, "login", "", "User login for the session")
	rootCmd.PersistentFlags().StringVar(&email, "email", "", "User email for the session, used when --login is empty")
	rootCmd.PersistentFlags().StringVar(&password, "password", os.Getenv("QB_PASSWORD"), "User password (default $QB_PASSWORD)")

	rootCmd.AddCommand(sessionCmd, requestCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newProxy builds a proxy from the config file
func newProxy() (*qbproxy.Proxy, error) {
	opts, err := qbproxy.LoadOptions(configPath)
	if err != nil {
		return nil, err
	}

	if verbose {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return qbproxy.NewProxy(opts)
}

// user returns the session user given on the command line, or nil
func user() *qbproxy.UserCredentials {
	if login == "" && email == "" {
		return nil
	}
	return &qbproxy.UserCredentials{Login: login, Email: email, Password: password}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
