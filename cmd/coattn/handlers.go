package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"coattn-go/purego/tensor"
	"coattn-go/vqa"
)

// IndexHandler prints annotation statistics.
func IndexHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	raw, err := vqa.LoadRawData(cfg.Dataset.JSONPath)
	if err != nil {
		return err
	}
	anns := vqa.BuildAnnotations(raw)

	known := make(map[int]bool, len(raw.Images))
	for _, img := range raw.Images {
		known[img.ID] = true
	}
	unmatched := 0
	for _, ann := range raw.Annotations {
		if !known[ann.ImageID] {
			unmatched++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "images:      %d\n", len(raw.Images))
	fmt.Fprintf(out, "annotations: %d\n", len(raw.Annotations))
	fmt.Fprintf(out, "unmatched:   %d\n", unmatched)
	fmt.Fprintf(out, "records:     %d\n", len(anns))
	fmt.Fprintf(out, "fingerprint: %016x\n", vqa.Fingerprint(anns))
	return nil
}

// VocabHandler builds and saves a word vocabulary.
func VocabHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	raw, err := vqa.LoadRawData(cfg.Dataset.JSONPath)
	if err != nil {
		return err
	}

	ds := cfg.Dataset
	vocab := vqa.BuildWordVocabulary(vqa.BuildAnnotations(raw), ds.MinFreq, ds.MaxQuestionLength, ds.MaxAnswerLength)

	output, _ := cmd.Flags().GetString("output")
	if err := vocab.Save(output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", vocab.Len(), output)
	return nil
}

// InstancesHandler assembles every instance through the batch loader.
func InstancesHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	raw, err := vqa.LoadRawData(cfg.Dataset.JSONPath)
	if err != nil {
		return err
	}

	vocab, closeVocab, err := openVocabulary(cmd, cfg, raw)
	if err != nil {
		return err
	}
	defer closeVocab()

	images, closeImages, err := openResolver(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeImages()

	dataset := vqa.NewRawQuestionImageDatasetFromData(raw, vocab, images)
	loader := vqa.NewLoader(dataset, &cfg.Dataset, vocab.PaddingIdx())
	loader.ShowProgress = true

	var batches, instances, regions int
	start := time.Now()
	err = loader.Each(cmd.Context(), func(b *vqa.Batch) error {
		batches++
		instances += b.Len()
		if b.FeatureMask != nil {
			for _, n := range b.FeatureMask.Lengths() {
				regions += n
			}
		}
		return nil
	})
	if errors.Is(err, vqa.ErrNotFound) {
		return fmt.Errorf("%w (check DATASET.FEATURE_PATH.IMAGE)", err)
	} else if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "instances: %d in %d batches (%.2fs)\n", instances, batches, time.Since(start).Seconds())
	if regions > 0 {
		fmt.Fprintf(out, "regions:   %.1f per image\n", float64(regions)/float64(instances))
	}
	return nil
}

// BenchHandler times encoder forward passes on random inputs.
func BenchHandler(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	batch, _ := flags.GetInt("batch")
	visionLen, _ := flags.GetInt("vision-len")
	languageLen, _ := flags.GetInt("language-len")
	iters, _ := flags.GetInt("iters")
	seed, _ := flags.GetUint64("seed")
	dropout, _ := flags.GetBool("dropout")
	weights, _ := flags.GetString("weights")
	if batch < 1 || visionLen < 1 || languageLen < 1 || iters < 1 {
		return fmt.Errorf("batch, lengths and iters must be positive")
	}

	enc, err := tensor.NewCoAttentionEncoder(&cfg.Model)
	if err != nil {
		return err
	}
	if weights != "" {
		if err := tensor.LoadEncoderWeights(enc, weights); err != nil {
			return err
		}
	} else {
		tensor.InitParameters(enc, seed)
	}
	slog.Info("encoder ready", "config", &cfg.Model)

	rng := rand.New(rand.NewSource(int64(seed)))
	d := cfg.Model.DModel
	vision := randomFeatures(rng, batch, visionLen, d)
	language := randomFeatures(rng, batch, languageLen, d)
	visionMask := randomPadding(rng, batch, visionLen)
	languageMask := randomPadding(rng, batch, languageLen)

	var dropoutRNG *rand.Rand
	if dropout {
		dropoutRNG = rand.New(rand.NewSource(int64(seed) + 1))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration:\n")
	fmt.Fprintf(out, "  Parameters: %d\n", cfg.Model.EstimateParameters())
	fmt.Fprintf(out, "  Layers: %d\n", enc.NumLayers())
	fmt.Fprintf(out, "  Batch: %d, vision: %d, language: %d, d_model: %d\n", batch, visionLen, languageLen, d)
	fmt.Fprintln(out)

	// warmup
	if _, _, err := enc.ForwardWithDropout(vision, visionMask, language, languageMask, dropoutRNG); err != nil {
		return err
	}

	bar := progressbar.NewOptions(iters,
		progressbar.OptionSetDescription("Forward"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
	)

	startTime := time.Now()
	for i := 0; i < iters; i++ {
		if _, _, err := enc.ForwardWithDropout(vision, visionMask, language, languageMask, dropoutRNG); err != nil {
			return err
		}
		bar.Add(1)
	}
	bar.Finish()
	elapsed := time.Since(startTime).Seconds()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Benchmark Results:")
	fmt.Fprintln(out, "==================")
	fmt.Fprintf(out, "Time elapsed: %.2f seconds\n", elapsed)
	fmt.Fprintf(out, "Average latency: %.2f ms/forward\n", elapsed*1000/float64(iters))
	fmt.Fprintf(out, "Throughput: %.2f instances/sec\n", float64(iters*batch)/elapsed)
	return nil
}

func randomFeatures(rng *rand.Rand, batch, seqLen, d int) *tensor.Tensor {
	t := tensor.NewTensor(batch, seqLen, d)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}

// randomPadding keeps at least one valid position per row.
func randomPadding(rng *rand.Rand, batch, seqLen int) *tensor.Mask {
	lengths := make([]int, batch)
	for i := range lengths {
		lengths[i] = 1 + rng.Intn(seqLen)
	}
	return tensor.NewPaddingMask(lengths, seqLen)
}
