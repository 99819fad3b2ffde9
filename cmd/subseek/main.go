package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(afero.NewOsFs())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(1)
	}
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:           "subseek",
		Short:         "Client CLI du serveur subseek",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("SUBSEEK_SERVER_URL", "http://127.0.0.1:8080"), "URL du serveur (ex: http://127.0.0.1:8080)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout HTTP")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Sortie JSON brute")

	root.AddCommand(
		newRawCommand(opts, "health", "État du serveur", "/api/v1/health"),
		newRawCommand(opts, "version", "Version du serveur", "/api/v1/version"),
		newCatalogsCommand(opts),
		newSearchCommand(opts),
		newFetchCommand(opts, fs),
		newSettingsCommand(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
