package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/internal/config"
	"github.com/yanachan-dev/homepage/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		origin string
		driver string
		dsn    string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a homepage.yaml with the default settings",
		Long: `Write a homepage.yaml with the default settings into dir, or the
working directory.

Examples:
  homepage init --origin=https://yanchan.example
  homepage init --origin=http://localhost:5000 --driver=sqlite --dsn=homepage.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if config.Exists(dir) && !force {
				return errors.Newf(errors.CategoryCLI, "a config file already exists in %s", dir).
					WithSuggestion("Use --force to overwrite it")
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}

			cfg := config.New()
			cfg.Origin = origin
			cfg.Storage.Driver = driver
			cfg.Storage.DSN = dsn
			if err := cfg.Validate(); err != nil {
				return err
			}

			path := filepath.Join(dir, config.FileNames[0])
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			success("Created %s", path)
			info("Start the server with: homepage serve")
			return nil
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "", "Site origin to proxy (required)")
	cmd.Flags().StringVar(&driver, "driver", "memory", "Storage driver")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Storage DSN for sqlite and postgres")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	cmd.MarkFlagRequired("origin")

	return cmd
}
