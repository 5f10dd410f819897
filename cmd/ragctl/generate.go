package main

import (
	"fmt"
	"time"

	"github.com/fyerfyer/rag-dataset/internal/app"
	"github.com/fyerfyer/rag-dataset/internal/dataset"
	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Split a file, generate questions for its chunks and print the dataset Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := ingestOptions(cmd, cfg)

		doc, chunks, err := splitFile(args[0], opts)
		if err != nil {
			return err
		}
		chunks, _ = document.FilterChunks(chunks, cfg.Filter.ExemptHeadings(document.TopHeadings(doc.Sections)...))
		if len(chunks) == 0 {
			return fmt.Errorf("%s: no chunks left after filtering", args[0])
		}

		client, err := app.NewLLMClient(cfg, logger)
		if err != nil {
			return err
		}
		prompts, err := app.LoadPrompts(cfg)
		if err != nil {
			return err
		}
		gen, err := app.NewGenerator(cfg, client, prompts, logger, opts.LLMModel)
		if err != nil {
			return err
		}

		items, err := gen.Generate(cmd.Context(), chunks, opts.TotalQuestions)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), dataset.RenderDataset(doc.Title, items, time.Now()))
		return err
	},
}

func init() {
	addIngestFlags(generateCmd)
}
