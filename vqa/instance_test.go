package vqa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleShiftsAnswer(t *testing.T) {
	const (
		pad = 0
		eos = 2
		w1  = 5
		w2  = 6
	)
	vocab := fixedVocab{
		question: []int{1, 9, eos, pad},
		answer:   []int{w1, w2, eos, pad},
		pad:      pad,
		eos:      eos,
	}
	ann := Annotation{Question: "Is it red?", Answer: "yes", ImageID: 3, Filename: "red.jpg"}

	inst, err := Assemble(ann, vocab, nameResolver{})
	require.NoError(t, err)

	assert.Equal(t, []int{w2, eos, pad, pad}, inst.ShiftedRightAnswerTokens)
	assert.Equal(t, []int{w1, w2, pad, pad}, inst.AnswerTokens)
	assert.Equal(t, []int{1, 9, eos, pad}, inst.QuestionTokens)
	assert.Equal(t, "Is it red?", inst.Question)
	assert.Equal(t, "/images/red.jpg", inst.Image.Path)
}

func TestAssembleErrors(t *testing.T) {
	ann := Annotation{Question: "q", Answer: "a", Filename: "x.jpg"}

	_, err := Assemble(ann, fixedVocab{err: ErrUnknownToken}, nameResolver{})
	assert.ErrorIs(t, err, ErrNotFound)

	vocab := fixedVocab{question: []int{1, 2}, answer: []int{1, 2}, eos: 2}
	_, err = Assemble(ann, vocab, PathResolver{Base: t.TempDir()})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, errors.Is(ErrUnknownToken, ErrNotFound))
}
