package vqa

import (
	"fmt"
	"log/slog"
)

// Dataset is the capability set shared by the question/image datasets.
type Dataset interface {
	LoadAnnotations(raw *RawData) []Annotation
	GetItem(idx int) (*Instance, error)
	Len() int
}

// RawQuestionImageDataset serves instances with the question kept as raw
// text alongside its tokens.
type RawQuestionImageDataset struct {
	vocab       Vocabulary
	images      ImageResolver
	annotations []Annotation
}

// NewRawQuestionImageDataset reads jsonPath and flattens its annotations.
func NewRawQuestionImageDataset(jsonPath string, vocab Vocabulary, images ImageResolver) (*RawQuestionImageDataset, error) {
	raw, err := LoadRawData(jsonPath)
	if err != nil {
		return nil, err
	}
	d := NewRawQuestionImageDatasetFromData(raw, vocab, images)
	slog.Info("dataset loaded", "path", jsonPath, "images", len(raw.Images), "instances", d.Len())
	return d, nil
}

// NewRawQuestionImageDatasetFromData builds the dataset from decoded data.
func NewRawQuestionImageDatasetFromData(raw *RawData, vocab Vocabulary, images ImageResolver) *RawQuestionImageDataset {
	d := &RawQuestionImageDataset{vocab: vocab, images: images}
	d.annotations = d.LoadAnnotations(raw)
	return d
}

// LoadAnnotations implements Dataset.
func (d *RawQuestionImageDataset) LoadAnnotations(raw *RawData) []Annotation {
	return BuildAnnotations(raw)
}

// GetItem assembles the instance at idx.
func (d *RawQuestionImageDataset) GetItem(idx int) (*Instance, error) {
	if idx < 0 || idx >= len(d.annotations) {
		return nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.annotations))
	}
	inst, err := Assemble(d.annotations[idx], d.vocab, d.images)
	if err != nil {
		return nil, fmt.Errorf("instance %d: %w", idx, err)
	}
	return inst, nil
}

// Len returns the number of flattened annotations.
func (d *RawQuestionImageDataset) Len() int {
	return len(d.annotations)
}

// Questions returns the question of every record, in order.
func (d *RawQuestionImageDataset) Questions() []string {
	questions := make([]string, len(d.annotations))
	for i, ann := range d.annotations {
		questions[i] = ann.Question
	}
	return questions
}

// Answers returns the answer of every record, in order.
func (d *RawQuestionImageDataset) Answers() []string {
	answers := make([]string, len(d.annotations))
	for i, ann := range d.annotations {
		answers[i] = ann.Answer
	}
	return answers
}
