package vqa

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// Vocabulary maps questions and answers to fixed-length token sequences.
// Encode methods return a new slice on every call.
type Vocabulary interface {
	EncodeQuestion(text string) ([]int, error)
	EncodeAnswer(text string) ([]int, error)
	PaddingIdx() int
	EOSIdx() int
}

// Special tokens of a WordVocabulary, in index order.
const (
	PadToken = "<pad>"
	BOSToken = "<bos>"
	EOSToken = "<eos>"
	UnkToken = "<unk>"
)

var specialTokens = []string{PadToken, BOSToken, EOSToken, UnkToken}

// WordVocabulary is a word-level vocabulary. Sequences are encoded as
// <bos> words <eos>, truncated or padded to a fixed length.
type WordVocabulary struct {
	itos []string
	stoi map[string]int

	MaxQuestionLength int
	MaxAnswerLength   int

	pad, bos, eos, unk int
}

// Tokenize lowercases text, drops punctuation other than apostrophes and
// splits on whitespace.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) && r != '\'' {
			return ' '
		}
		return unicode.ToLower(r)
	}, text)
	return strings.Fields(cleaned)
}

// BuildWordVocabulary counts words across questions and answers and keeps
// those seen at least minFreq times. Words are ordered by descending count,
// then alphabetically.
func BuildWordVocabulary(annotations []Annotation, minFreq, maxQuestionLength, maxAnswerLength int) *WordVocabulary {
	counts := make(map[string]int)
	for _, ann := range annotations {
		for _, w := range Tokenize(ann.Question) {
			counts[w]++
		}
		for _, w := range Tokenize(ann.Answer) {
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w, n := range counts {
		if n >= minFreq && !isSpecial(w) {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	v, err := NewWordVocabulary(append(append([]string{}, specialTokens...), words...), maxQuestionLength, maxAnswerLength)
	if err != nil {
		// specials are always present
		panic(err)
	}
	return v
}

func isSpecial(w string) bool {
	for _, s := range specialTokens {
		if w == s {
			return true
		}
	}
	return false
}

// NewWordVocabulary builds a vocabulary from an index-to-string table. The
// table must contain <pad>, <bos> and <eos>; <unk> is optional.
func NewWordVocabulary(itos []string, maxQuestionLength, maxAnswerLength int) (*WordVocabulary, error) {
	if maxQuestionLength < 2 || maxAnswerLength < 2 {
		return nil, fmt.Errorf("sequence lengths must be at least 2, got question %d, answer %d", maxQuestionLength, maxAnswerLength)
	}

	v := &WordVocabulary{
		itos:              itos,
		stoi:              make(map[string]int, len(itos)),
		MaxQuestionLength: maxQuestionLength,
		MaxAnswerLength:   maxAnswerLength,
		unk:               -1,
	}
	for i, w := range itos {
		if _, ok := v.stoi[w]; !ok {
			v.stoi[w] = i
		}
	}

	for _, special := range []struct {
		token string
		idx   *int
	}{{PadToken, &v.pad}, {BOSToken, &v.bos}, {EOSToken, &v.eos}} {
		idx, ok := v.stoi[special.token]
		if !ok {
			return nil, fmt.Errorf("vocabulary is missing %s", special.token)
		}
		*special.idx = idx
	}
	if idx, ok := v.stoi[UnkToken]; ok {
		v.unk = idx
	}
	return v, nil
}

type vocabFile struct {
	Itos              []string `json:"itos"`
	MaxQuestionLength int      `json:"max_question_length"`
	MaxAnswerLength   int      `json:"max_answer_length"`
}

// LoadWordVocabulary reads a vocabulary written by Save.
func LoadWordVocabulary(path string) (*WordVocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	var f vocabFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return NewWordVocabulary(f.Itos, f.MaxQuestionLength, f.MaxAnswerLength)
}

// Save writes the vocabulary as JSON.
func (v *WordVocabulary) Save(path string) error {
	data, err := json.MarshalIndent(vocabFile{
		Itos:              v.itos,
		MaxQuestionLength: v.MaxQuestionLength,
		MaxAnswerLength:   v.MaxAnswerLength,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EncodeQuestion encodes text to MaxQuestionLength tokens.
func (v *WordVocabulary) EncodeQuestion(text string) ([]int, error) {
	return v.encode(text, v.MaxQuestionLength)
}

// EncodeAnswer encodes text to MaxAnswerLength tokens.
func (v *WordVocabulary) EncodeAnswer(text string) ([]int, error) {
	return v.encode(text, v.MaxAnswerLength)
}

func (v *WordVocabulary) encode(text string, length int) ([]int, error) {
	words := Tokenize(text)
	if len(words) > length-2 {
		words = words[:length-2]
	}

	tokens := make([]int, length)
	tokens[0] = v.bos
	for i, w := range words {
		idx, ok := v.stoi[w]
		if !ok {
			if v.unk < 0 {
				return nil, fmt.Errorf("%q: %w", w, ErrUnknownToken)
			}
			idx = v.unk
		}
		tokens[i+1] = idx
	}
	tokens[len(words)+1] = v.eos
	for i := len(words) + 2; i < length; i++ {
		tokens[i] = v.pad
	}
	return tokens, nil
}

// Decode joins the words of tokens, stopping at <eos> and skipping
// padding and <bos>.
func (v *WordVocabulary) Decode(tokens []int) string {
	words := make([]string, 0, len(tokens))
	for _, idx := range tokens {
		if idx == v.eos {
			break
		}
		if idx == v.pad || idx == v.bos || idx < 0 || idx >= len(v.itos) {
			continue
		}
		words = append(words, v.itos[idx])
	}
	return strings.Join(words, " ")
}

// PaddingIdx returns the index of <pad>.
func (v *WordVocabulary) PaddingIdx() int { return v.pad }

// EOSIdx returns the index of <eos>.
func (v *WordVocabulary) EOSIdx() int { return v.eos }

// BOSIdx returns the index of <bos>.
func (v *WordVocabulary) BOSIdx() int { return v.bos }

// Len returns the number of entries.
func (v *WordVocabulary) Len() int { return len(v.itos) }
