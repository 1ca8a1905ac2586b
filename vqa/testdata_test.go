package vqa

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeRawData writes raw as an annotation file in a temp dir.
func writeRawData(t *testing.T, raw *RawData) string {
	t.Helper()
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "annotations.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// fixedVocab returns canned encodings.
type fixedVocab struct {
	question, answer []int
	pad, eos         int
	err              error
}

func (v fixedVocab) EncodeQuestion(string) ([]int, error) {
	return append([]int(nil), v.question...), v.err
}

func (v fixedVocab) EncodeAnswer(string) ([]int, error) {
	return append([]int(nil), v.answer...), v.err
}

func (v fixedVocab) PaddingIdx() int { return v.pad }
func (v fixedVocab) EOSIdx() int     { return v.eos }

// nameResolver resolves every filename without touching the disk.
type nameResolver struct{}

func (nameResolver) Resolve(filename string) (Image, error) {
	return Image{Filename: filename, Path: "/images/" + filename}, nil
}

func sampleRawData() *RawData {
	return &RawData{
		Images: []RawImage{
			{ID: 1, Filename: "cat.jpg"},
			{ID: 2, Filename: "dog.jpg"},
			{ID: 1, Filename: "duplicate.jpg"},
		},
		Annotations: []RawAnnotation{
			{ImageID: 1, Question: "What animal is this?", Answers: []string{"cat", "a cat", "kitten"}},
			{ImageID: 9, Question: "Where is it?", Answers: []string{"nowhere"}},
			{ImageID: 2, Question: "What color is the dog?", Answers: []string{"brown"}},
		},
	}
}
