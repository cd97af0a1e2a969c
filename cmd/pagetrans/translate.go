package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

func newTranslateCmd(c *cli) *cobra.Command {
	var (
		source  string
		target  string
		asJSON  bool
		showOCR bool
	)

	cmd := &cobra.Command{
		Use:   "translate PAGE [PAGE...]",
		Short: "Recognize and translate page images",
		Long: `translate reads one image per page, in order, runs text recognition and
translation and prints the translated text of every page.
Source and target default to the language pair stored in the settings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			images := make([][]byte, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				images = append(images, data)
			}

			pair := c.components.Settings.Get(ctx)
			if source == "" {
				source = pair.SourceLanguage.Code
			}
			if target == "" {
				target = pair.TargetLanguage.Code
			}

			doc, err := c.components.Usecase.CreateDocument(ctx, images, source, target)
			if err != nil {
				return err
			}
			spin := newSpinner(cmd.ErrOrStderr(), fmt.Sprintf("translating %d page(s)", doc.PageCount()))
			spin.Start()
			processed, err := c.components.Usecase.ProcessDocument(ctx, doc)
			spin.Stop()
			if err != nil && !processed.IsFailed() {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(processed.WithoutImages()); encErr != nil {
					return encErr
				}
			} else {
				printDocument(out, processed, showOCR)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "source language code or \"auto\"")
	cmd.Flags().StringVarP(&target, "target", "t", "", "target language code")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the document as JSON")
	cmd.Flags().BoolVar(&showOCR, "show-text", false, "print the recognized text next to the translation")
	return cmd
}

func printDocument(w io.Writer, doc domain.Document, showOCR bool) {
	fmt.Fprintf(w, "document %s: %s (%s -> %s)\n",
		doc.ID, statusColor(doc.Status).Sprint(doc.Status.DisplayText()), doc.SourceLanguage.Code, doc.TargetLanguage.Code)

	for _, page := range doc.Pages {
		fmt.Fprintf(w, "\n--- page %d ---\n", page.PageNumber)
		if showOCR && page.RecognizedText != nil {
			fmt.Fprintf(w, "[recognized]\n%s\n[translated]\n", *page.RecognizedText)
		}
		if page.TranslatedText != nil {
			fmt.Fprintln(w, *page.TranslatedText)
		}
	}
}
