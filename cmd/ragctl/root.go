package main

import (
	"os"

	"github.com/fyerfyer/rag-dataset/config"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Build RAG evaluation datasets from Wikipedia articles and Markdown files",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute 运行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().String("provider", "", "LLM provider (overrides llm.provider)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(ingestCmd)
}

// loadConfig 读取配置并应用全局参数
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if p, _ := cmd.Flags().GetString("provider"); p != "" {
		cfg.LLM.Provider = p
	}

	// 标准输出留给结果，日志写到标准错误
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		logger.SetLevel(logrus.DebugLevel)
	}
	return cfg, logger, nil
}

// addIngestFlags 注册与导入参数对应的命令行参数
func addIngestFlags(cmd *cobra.Command) {
	d := models.DefaultIngestOptions()
	cmd.Flags().Int("chunk-size", 0, "Target chunk size in characters (default from config)")
	cmd.Flags().Int("chunk-overlap", -1, "Chunk overlap in characters (default from config)")
	cmd.Flags().String("strategy", "", "Split strategy: header_aware, recursive or sentence (default "+d.SplitStrategy+")")
	cmd.Flags().Int("questions", 0, "Total number of questions (default from config)")
	cmd.Flags().String("model", "", "LLM model override")
}

// ingestOptions 读取命令行中的导入参数，未设置的项使用配置默认值
func ingestOptions(cmd *cobra.Command, cfg *config.Config) models.IngestOptions {
	var opts models.IngestOptions
	opts.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
	opts.SplitStrategy, _ = cmd.Flags().GetString("strategy")
	opts.TotalQuestions, _ = cmd.Flags().GetInt("questions")
	opts.LLMModel, _ = cmd.Flags().GetString("model")
	opts = opts.WithDefaults(cfg.Ingest.WithDefaults(models.DefaultIngestOptions()))

	// 0是合法的重叠值，不能交给零值补齐
	if overlap, _ := cmd.Flags().GetInt("chunk-overlap"); overlap >= 0 {
		opts.ChunkOverlap = overlap
	}
	return opts
}
