package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/listing-ledger/internal/area"
)

var validateAreaCmd = &cobra.Command{
	Use:   "validate-area <name>",
	Short: "Check that an area name is usable and known to the source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := area.Check(args[0]); err != nil {
			return err
		}

		env, err := initPipeline(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := areaOptions(cfg, nil)
		opts.MaxAttempts = 1
		name, err := area.NewValidator(env.Source, opts).Validate(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, summaryTitleStyle.Render("✓ "+name))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateAreaCmd)
}
