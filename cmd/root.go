package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "doc-extract",
	Short: "Field extraction from single-page PDF documents",
	Long:  "Extracts the fields of a caller-supplied schema from the first page of a PDF using a language model, with Redis result caching, an HTTP API and an evaluation harness.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
