package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
)

func newModelsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List, download and delete translation models",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List supported languages and their model state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tLANGUAGE\tDOWNLOADED")
				for _, lang := range c.components.Tracker.Languages(cmd.Context()) {
					fmt.Fprintf(tw, "%s\t%s\t%t\n", lang.Code, lang.DisplayName, lang.IsDownloaded)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "download CODE",
			Short: "Download the translation model for a language",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				lang, err := languages.Lookup(args[0])
				if err != nil {
					return err
				}

				bar := newDownloadBar(cmd.ErrOrStderr(), lang.DisplayName)
				err = c.components.Tracker.DownloadWithProgress(cmd.Context(), lang, func(p float64) {
					_ = bar.Set(int(p * progressSteps))
				})
				if err != nil {
					return err
				}
				_ = bar.Finish()
				fmt.Fprintf(cmd.OutOrStdout(), "%s model ready\n", lang.DisplayName)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete CODE",
			Short: "Delete the translation model for a language",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				lang, err := languages.Lookup(args[0])
				if err != nil {
					return err
				}
				if err := c.components.Tracker.Delete(cmd.Context(), lang); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s model deleted\n", lang.DisplayName)
				return nil
			},
		},
	)
	return cmd
}
