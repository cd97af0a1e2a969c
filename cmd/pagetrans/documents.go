package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newDocumentsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Browse and clear the translation history",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored documents, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				docs, err := c.components.Usecase.ListDocuments(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tPAIR\tPAGES\tSTATUS")
				for _, doc := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s->%s\t%d\t%s\n",
						doc.ID,
						doc.CreatedAt.Local().Format(time.DateTime),
						doc.SourceLanguage.Code,
						doc.TargetLanguage.Code,
						doc.PageCount(),
						statusColor(doc.Status).Sprint(doc.Status),
					)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Print the translated text of a stored document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid document id: %w", err)
				}
				doc, err := c.components.Usecase.GetDocument(cmd.Context(), id)
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), doc, true)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete one stored document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid document id: %w", err)
				}
				return c.components.Usecase.DeleteDocument(cmd.Context(), id)
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the whole history",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.components.Usecase.ClearAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
				return nil
			},
		},
	)
	return cmd
}
