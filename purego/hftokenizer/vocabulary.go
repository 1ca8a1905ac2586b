// Package hftokenizer adapts HuggingFace tokenizers to vqa.Vocabulary. It
// links the native tokenizers library (libtokenizers.a).
package hftokenizer

import (
	"fmt"

	"github.com/daulet/tokenizers"

	"coattn-go/purego"
)

// Vocabulary encodes questions and answers with a tokenizer.json.
type Vocabulary struct {
	tk      *tokenizers.Tokenizer
	special purego.SpecialTokens

	MaxQuestionLength int
	MaxAnswerLength   int
}

// New loads the tokenizer at path.
func New(path string, maxQuestionLength, maxAnswerLength int) (*Vocabulary, error) {
	special, err := purego.LoadSpecialTokens(path)
	if err != nil {
		return nil, err
	}

	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	return &Vocabulary{
		tk:                tk,
		special:           special,
		MaxQuestionLength: maxQuestionLength,
		MaxAnswerLength:   maxAnswerLength,
	}, nil
}

// EncodeQuestion implements vqa.Vocabulary.
func (v *Vocabulary) EncodeQuestion(text string) ([]int, error) {
	return v.encode(text, v.MaxQuestionLength), nil
}

// EncodeAnswer implements vqa.Vocabulary.
func (v *Vocabulary) EncodeAnswer(text string) ([]int, error) {
	return v.encode(text, v.MaxAnswerLength), nil
}

// encode applies the tokenizer's own special-token template, then fits the
// ids to length. A truncated sequence keeps its end-of-sequence token.
func (v *Vocabulary) encode(text string, length int) []int {
	ids, _ := v.tk.Encode(text, true)

	tokens := make([]int, length)
	for i := range tokens {
		tokens[i] = v.special.Pad
	}

	n := min(len(ids), length)
	for i := 0; i < n; i++ {
		tokens[i] = int(ids[i])
	}
	if len(ids) > length && int(ids[len(ids)-1]) == v.special.EOS {
		tokens[length-1] = v.special.EOS
	}
	return tokens
}

// PaddingIdx implements vqa.Vocabulary.
func (v *Vocabulary) PaddingIdx() int { return v.special.Pad }

// EOSIdx implements vqa.Vocabulary.
func (v *Vocabulary) EOSIdx() int { return v.special.EOS }

// Close releases the native tokenizer.
func (v *Vocabulary) Close() error {
	return v.tk.Close()
}
