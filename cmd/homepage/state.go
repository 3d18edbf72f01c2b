package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/internal/errors"
	"github.com/yanachan-dev/homepage/pkg/store"
)

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit the persisted application state",
		Long: `Read and write the application state kept in the configured storage.

Only the durable parts of the state are persisted: the signed-in
user, the app preferences and the UI page. Notifications and cache
status start fresh with every server run.

Examples:
  homepage state get
  homepage state get app.theme
  homepage state set '{"app":{"theme":"dark"}}'
  homepage state reset`,
	}

	cmd.AddCommand(stateGetCmd(), stateSetCmd(), stateResetCmd())
	return cmd
}

func stateGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [path]",
		Short: "Print the state, or the value at a dotted path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCommandApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				data, err := json.MarshalIndent(a.store.GetState(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			r := a.store.Get(args[0])
			if !r.Exists() {
				return fmt.Errorf("no value at %q", args[0])
			}
			if r.IsObject() || r.IsArray() {
				fmt.Fprintln(out, r.Raw)
			} else {
				fmt.Fprintln(out, r.String())
			}
			return nil
		},
	}
}

func stateSetCmd() *cobra.Command {
	var silent bool

	cmd := &cobra.Command{
		Use:   "set <patch>",
		Short: "Merge a JSON patch into the state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := store.ParsePatch([]byte(args[0]))
			if err == nil {
				err = p.Validate()
			}
			if err != nil {
				return errors.New("E141").Wrap(err)
			}

			a, err := openCommandApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []store.SetOption
			if silent {
				opts = append(opts, store.Silent())
			}
			a.store.SetState(p, opts...)
			fmt.Fprintln(cmd.OutOrStdout(), "state updated")
			return nil
		},
	}

	cmd.Flags().BoolVar(&silent, "silent", false, "Skip listeners and events")
	return cmd
}

func stateResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCommandApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			a.store.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "state reset")
			return nil
		},
	}
}

// openCommandApp loads the config and opens its storage, logging to the
// command's stderr.
func openCommandApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return openApp(cmd.Context(), cfg, cmd.ErrOrStderr())
}
