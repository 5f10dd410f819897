package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/spf13/cobra"
)

var splitCmd = &cobra.Command{
	Use:   "split <file>",
	Short: "Split a Markdown, HTML or wikitext file and print the chunks as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := ingestOptions(cmd, cfg)
		filter, _ := cmd.Flags().GetBool("filter")

		doc, chunks, err := splitFile(args[0], opts)
		if err != nil {
			return err
		}
		if filter {
			var dropped []document.FilterDecision
			chunks, dropped = document.FilterChunks(chunks, cfg.Filter.ExemptHeadings(document.TopHeadings(doc.Sections)...))
			for _, d := range dropped {
				fmt.Fprintf(os.Stderr, "filtered %s: %s\n", d.ChunkID, d.Reason)
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"title":      doc.Title,
			"strategy":   opts.SplitStrategy,
			"num_chunks": len(chunks),
			"chunks":     chunks,
		})
	},
}

func init() {
	addIngestFlags(splitCmd)
	splitCmd.Flags().Bool("filter", false, "Drop short and unwanted-section chunks")
}

// splitFile 解析本地文件并按参数分块
func splitFile(path string, opts models.IngestOptions) (*document.ParsedDocument, []document.Chunk, error) {
	parser, err := document.ParserFactory(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	base := filepath.Base(path)
	doc, err := parser.Parse(f, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return nil, nil, err
	}

	articleID := models.NewArticleID("file://"+path, doc.Title, time.Now())
	chunks, err := document.SplitContent(doc.Content, doc.Sections, opts.SplitStrategy, opts.ChunkSize, opts.ChunkOverlap, articleID)
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}
