package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/area"
	"github.com/sells-group/listing-ledger/internal/config"
	"github.com/sells-group/listing-ledger/internal/ledger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "listing-ledger",
	Short: "Incremental business listing harvester",
	Long:  "Searches a maps source for businesses in an area, records new listings in a timestamped workbook per run, and keeps a rotating ledger of listings already seen.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// exitCode maps a command error to the process exit status. Failed
// preconditions exit 1; other failures exit 2.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, area.ErrFatalPrecondition), errors.Is(err, ledger.ErrLocked):
		return 1
	default:
		return 2
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
