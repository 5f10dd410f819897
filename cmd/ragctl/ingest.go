package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/fyerfyer/rag-dataset/internal/app"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <wikipedia-url>",
	Short: "Run the full ingestion pipeline for a Wikipedia article in this process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// 本地执行，不经过任务队列
		cfg.Queue.Enable = false
		opts := ingestOptions(cmd, cfg)
		opts.Reingest, _ = cmd.Flags().GetBool("reingest")

		a, err := app.Build(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		res, err := a.Ingest.StartIngest(ctx, args[0], opts)
		if err != nil {
			return err
		}

		replay, events, cancel := a.Ingest.Hub().Subscribe(res.RunID)
		defer cancel()

		out := cmd.OutOrStdout()
		last := models.Stage("")
		show := func(stage models.Stage, message string) {
			fmt.Fprintf(out, "[%s] %-16s %s\n", res.RunID, stage, message)
			last = stage
		}
		for _, ev := range replay {
			show(ev.Stage, ev.Message)
		}
		for !last.Terminal() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					last = models.StageDone
					continue
				}
				show(ev.Stage, ev.Message)
			}
		}
		a.Ingest.Wait()

		run, err := a.Ingest.GetRun(ctx, res.RunID)
		if err != nil {
			return err
		}
		if run.Stage == models.StageFailed {
			reason := run.Error
			if reason == "" {
				reason = run.Message
			}
			return fmt.Errorf("ingestion failed: %s", reason)
		}
		fmt.Fprintf(out, "article %s ingested (%s)\n", run.ArticleID, run.Status)
		return nil
	},
}

func init() {
	addIngestFlags(ingestCmd)
	ingestCmd.Flags().Bool("reingest", false, "Ingest again even if the article already exists")
}
