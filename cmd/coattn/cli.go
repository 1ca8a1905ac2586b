package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"coattn-go/purego"
	"coattn-go/purego/hftokenizer"
	"coattn-go/vqa"
)

// NewCLI builds the coattn command tree.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coattn",
		Short: "Co-attention encoder and VQA dataset tools",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			setupLogging(cmd)
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cobra.EnableCommandSorting = false

	indexCmd := &cobra.Command{
		Use:   "index [annotations.json]",
		Short: "Summarize an annotation file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  IndexHandler,
	}

	vocabCmd := &cobra.Command{
		Use:   "vocab [annotations.json]",
		Short: "Build a word vocabulary from annotations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  VocabHandler,
	}
	vocabCmd.Flags().StringP("output", "o", "vocab.json", "Output file")

	instancesCmd := &cobra.Command{
		Use:   "instances [annotations.json]",
		Short: "Assemble and batch every instance of a dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  InstancesHandler,
	}
	instancesCmd.Flags().String("vocab", "", "Word vocabulary file (built from the annotations when empty)")
	instancesCmd.Flags().String("tokenizer", "", "HuggingFace tokenizer.json to use instead of a word vocabulary")
	instancesCmd.Flags().Bool("features", false, "Read region features from FEATURE_PATH.IMAGE")
	instancesCmd.Flags().String("extractor", "", "ONNX feature extractor to run on raw images")
	instancesCmd.Flags().Int("image-size", 224, "Extractor input size")
	instancesCmd.Flags().Int("regions", 49, "Extractor output regions")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time encoder forward passes on random features",
		Args:  cobra.NoArgs,
		RunE:  BenchHandler,
	}
	benchCmd.Flags().String("weights", "", "Encoder weights (.safetensors or .pth)")
	benchCmd.Flags().Int("batch", 8, "Batch size")
	benchCmd.Flags().Int("vision-len", 49, "Vision sequence length")
	benchCmd.Flags().Int("language-len", 30, "Language sequence length")
	benchCmd.Flags().Int("iters", 10, "Timed iterations")
	benchCmd.Flags().Uint64("seed", 0, "Seed for parameters and inputs")
	benchCmd.Flags().Bool("dropout", false, "Run in training mode with dropout")

	rootCmd.AddCommand(indexCmd, vocabCmd, instancesCmd, benchCmd)
	return rootCmd
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose || os.Getenv("COATTN_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads --config and lets a positional argument override the
// annotation path.
func loadConfig(cmd *cobra.Command, args []string) (*Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.Dataset.JSONPath = args[0]
	}
	if cfg.Dataset.JSONPath == "" {
		return nil, fmt.Errorf("no annotation file: pass one or set DATASET.JSON_PATH")
	}
	if err := cfg.Dataset.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openVocabulary picks the vocabulary named by the flags. The returned
// closer is never nil.
func openVocabulary(cmd *cobra.Command, cfg *Config, raw *vqa.RawData) (vqa.Vocabulary, func() error, error) {
	noop := func() error { return nil }
	ds := cfg.Dataset

	if path, _ := cmd.Flags().GetString("tokenizer"); path != "" {
		v, err := hftokenizer.New(path, ds.MaxQuestionLength, ds.MaxAnswerLength)
		if err != nil {
			return nil, noop, err
		}
		return v, v.Close, nil
	}

	if path, _ := cmd.Flags().GetString("vocab"); path != "" {
		v, err := vqa.LoadWordVocabulary(path)
		return v, noop, err
	}

	return vqa.BuildWordVocabulary(vqa.BuildAnnotations(raw), ds.MinFreq, ds.MaxQuestionLength, ds.MaxAnswerLength), noop, nil
}

// openResolver picks the image resolver named by the flags.
func openResolver(cmd *cobra.Command, cfg *Config) (vqa.ImageResolver, func() error, error) {
	noop := func() error { return nil }
	base := cfg.Dataset.FeaturePath.Image

	if model, _ := cmd.Flags().GetString("extractor"); model != "" {
		size, _ := cmd.Flags().GetInt("image-size")
		regions, _ := cmd.Flags().GetInt("regions")
		r, err := purego.NewONNXImageResolver(base, purego.ONNXExtractorConfig{
			ModelPath: model,
			ImageSize: size,
			Regions:   regions,
			DModel:    cfg.Model.DModel,
			Threads:   cfg.Dataset.Workers,
		})
		if err != nil {
			return nil, noop, err
		}
		return r, r.Close, nil
	}

	if features, _ := cmd.Flags().GetBool("features"); features {
		return vqa.FeatureResolver{Base: base}, noop, nil
	}
	return vqa.PathResolver{Base: base}, noop, nil
}
