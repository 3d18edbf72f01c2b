// Command homepage runs the site's offline-first dev server and inspects
// its state, cache and account from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/internal/config"
	"github.com/yanachan-dev/homepage/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦ ╦┌─┐┌┐┌┌─┐┬ ┬┌─┐┌┐┌
  ╚╦╝├─┤││││  ├─┤├─┤│││
   ╩ ┴ ┴┘└┘└─┘┴ ┴┴ ┴┘└┘
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// configPath is the --config flag shared by every command.
var configPath string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "homepage",
		Short: "Offline-first dev server for the yanchan homepage",
		Long: `homepage serves the site through a caching proxy that keeps pages
available while the backend is unreachable.

  • Precached shell pages with cache-first fetches
  • Versioned cache generations with install and activate steps
  • Push notifications relayed to open pages
  • Application state persisted across restarts
  • Asset watching with automatic cache reinstall`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: homepage.yaml in the project root)")

	rootCmd.AddCommand(
		initCmd(),
		serveCmd(),
		stateCmd(),
		cacheCmd(),
		loginCmd(),
		registerCmd(),
		logoutCmd(),
		whoamiCmd(),
		langCmd(),
		messagesCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads the --config file, or the project's config file.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.LoadFromWorkingDir()
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
