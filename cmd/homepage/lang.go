package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/pkg/i18n"
)

func langCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lang",
		Short: "Show the interface language",
		Long: `Show the current interface language and the supported ones.

The language is the saved choice when there is one, otherwise the
best match for LC_ALL, LC_MESSAGES or LANG, otherwise the configured
language.

Examples:
  homepage lang
  homepage lang set en`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCommandApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tr := newTranslator(cmd.Context(), a)
			out := cmd.OutOrStdout()
			for _, lang := range tr.Supported() {
				marker := " "
				if lang == tr.Language() {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, lang)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <language>",
		Short: "Save the interface language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCommandApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tr := newTranslator(cmd.Context(), a)
			if !tr.SetLanguage(cmd.Context(), args[0]) {
				return fmt.Errorf("unsupported language %q (supported: %s)", args[0], strings.Join(tr.Supported(), ", "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "language: %s\n", tr.Language())
			return nil
		},
	})
	return cmd
}

// newTranslator creates the translator for a's storage and store and picks
// the language for this terminal.
func newTranslator(ctx context.Context, a *app) *i18n.Translator {
	tr := i18n.New(
		i18n.WithStorage(a.storage),
		i18n.WithStore(a.store),
		i18n.WithLogger(a.logger),
	)
	prefs := localeTags(os.Getenv)
	if a.cfg.Language != "" {
		prefs = append(prefs, a.cfg.Language)
	}
	tr.Detect(ctx, prefs...)
	return tr
}

// localeTags turns the POSIX locale variables into language tags, most
// specific first: "zh_CN.UTF-8" becomes "zh-CN".
func localeTags(getenv func(string) string) []string {
	var tags []string
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := getenv(name)
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		tags = append(tags, strings.ReplaceAll(v, "_", "-"))
	}
	return tags
}
