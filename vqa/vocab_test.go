package vqa

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"what's", "on", "the", "table"}, Tokenize("What's on  the table?"))
	assert.Empty(t, Tokenize("?!"))
}

func TestWordVocabularyEncode(t *testing.T) {
	v := BuildWordVocabulary(BuildAnnotations(sampleRawData()), 1, 6, 4)

	assert.Equal(t, 0, v.PaddingIdx())
	assert.Equal(t, 1, v.BOSIdx())
	assert.Equal(t, 2, v.EOSIdx())

	tokens, err := v.EncodeAnswer("a cat")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, v.BOSIdx(), tokens[0])
	assert.Equal(t, v.EOSIdx(), tokens[3])
	assert.Equal(t, "a cat", v.Decode(tokens))

	// truncated to leave room for <bos> and <eos>
	tokens, err = v.EncodeQuestion("What color is the dog today?")
	require.NoError(t, err)
	require.Len(t, tokens, 6)
	assert.Equal(t, "what color is the", v.Decode(tokens))

	// short input is padded
	tokens, err = v.EncodeQuestion("cat")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, tokens[3:])

	// unknown words map to <unk>
	tokens, err = v.EncodeAnswer("zebra")
	require.NoError(t, err)
	assert.Equal(t, 3, tokens[1])
}

func TestWordVocabularyMinFreq(t *testing.T) {
	anns := BuildAnnotations(sampleRawData())
	all := BuildWordVocabulary(anns, 1, 10, 10)
	frequent := BuildWordVocabulary(anns, 3, 10, 10)
	assert.Less(t, frequent.Len(), all.Len())

	// "what" appears in every record
	_, err := frequent.EncodeQuestion("what")
	require.NoError(t, err)
}

func TestWordVocabularySaveLoad(t *testing.T) {
	v := BuildWordVocabulary(BuildAnnotations(sampleRawData()), 1, 8, 5)
	path := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, v.Save(path))

	loaded, err := LoadWordVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, v.Len(), loaded.Len())
	assert.Equal(t, 8, loaded.MaxQuestionLength)

	want, err := v.EncodeQuestion("What animal is this?")
	require.NoError(t, err)
	got, err := loaded.EncodeQuestion("What animal is this?")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWordVocabularyWithoutUnknown(t *testing.T) {
	v, err := NewWordVocabulary([]string{PadToken, BOSToken, EOSToken, "yes"}, 4, 4)
	require.NoError(t, err)

	_, err = v.EncodeAnswer("no")
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewWordVocabulary([]string{PadToken, "yes"}, 4, 4)
	assert.Error(t, err)
}
