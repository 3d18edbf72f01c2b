package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/internal/server"
	"github.com/yanachan-dev/homepage/pkg/api"
	"github.com/yanachan-dev/homepage/pkg/swcache"
)

func cacheCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Control the cache of a running server",
		Long: `Inspect and drive the cache controller of a running "homepage serve".

Examples:
  homepage cache status
  homepage cache ls
  homepage cache reinstall
  homepage cache push '{"title":"Hi","body":"New message"}'`,
	}

	cmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Server URL (default: http:// plus the configured addr)")

	client := func() (*api.Client, error) {
		if serverURL != "" {
			return api.New(serverURL), nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return api.New("http://" + cfg.Addr), nil
	}

	lifecycle := func(use, short, endpoint string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				var st server.Status
				if err := c.Post(cmd.Context(), endpoint, nil, &st); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			},
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Print the controller state and manifest",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				var st server.Status
				if err := c.Get(cmd.Context(), "/_sw/status", nil, &st); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			},
		},
		&cobra.Command{
			Use:   "ls",
			Short: "List caches and their entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				return listCaches(cmd.Context(), c, cmd.OutOrStdout())
			},
		},
		lifecycle("install", "Precache the manifest into its cache", "/_sw/install"),
		lifecycle("activate", "Serve the installed cache and delete stale ones", "/_sw/activate"),
		lifecycle("reinstall", "Install and activate the version the assets hash to", "/_sw/reinstall"),
		&cobra.Command{
			Use:   "push [payload]",
			Short: "Deliver a push message to connected pages",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				var payload string
				if len(args) == 1 {
					payload = args[0]
				}
				err = c.Request(cmd.Context(), http.MethodPost, "/_sw/push", strings.NewReader(payload), nil,
					http.Header{"Content-Type": {"application/json"}})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "push delivered")
				return nil
			},
		},
	)
	return cmd
}

func printStatus(w io.Writer, st server.Status) {
	fmt.Fprintf(w, "state:    %s\n", st.State)
	fmt.Fprintf(w, "active:   %s\n", orNone(st.Active))
	fmt.Fprintf(w, "manifest: %s (%d urls)\n", st.Manifest.Version, len(st.Manifest.URLs))
}

func listCaches(ctx context.Context, c *api.Client, w io.Writer) error {
	var caches []swcache.CacheInfo
	if err := c.Get(ctx, "/_sw/caches", nil, &caches); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CACHE\tCURRENT\tENTRIES")
	for _, ci := range caches {
		current := ""
		if ci.Current {
			current = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", ci.Name, current, len(ci.URLs))
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
