package purego

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// TokenizerJSON represents the parts of tokenizer.json used here
type TokenizerJSON struct {
	Model struct {
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// TokenizerConfig represents the tokenizer_config.json structure
type TokenizerConfig struct {
	EOSToken TokenName `json:"eos_token"`
	BOSToken TokenName `json:"bos_token"`
	PadToken TokenName `json:"pad_token"`
}

// TokenName is a special token as written in tokenizer_config.json: a plain
// string, an AddedToken object with a "content" field, or null.
type TokenName string

// UnmarshalJSON implements json.Unmarshaler.
func (n *TokenName) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != nil {
			*n = TokenName(*s)
		}
		return nil
	}

	var added struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &added); err != nil {
		return err
	}
	*n = TokenName(added.Content)
	return nil
}

// SpecialTokens holds the ids of the tokens a vocabulary needs. -1 means
// absent.
type SpecialTokens struct {
	Pad int
	BOS int
	EOS int
}

// Conventional spellings, tried in order when tokenizer_config.json does not
// name a token.
var (
	padCandidates = []string{"<pad>", "[PAD]", "<|pad|>"}
	bosCandidates = []string{"<s>", "[CLS]", "<bos>", "<|begin_of_text|>"}
	eosCandidates = []string{"</s>", "[SEP]", "<eos>", "<|endoftext|>", "<|end_of_text|>"}
)

// LoadSpecialTokens resolves pad, bos and eos ids for the tokenizer.json at
// path, consulting a sibling tokenizer_config.json when present.
func LoadSpecialTokens(path string) (SpecialTokens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SpecialTokens{}, fmt.Errorf("failed to read tokenizer.json: %w", err)
	}

	var tokenizerJSON TokenizerJSON
	if err := json.Unmarshal(data, &tokenizerJSON); err != nil {
		return SpecialTokens{}, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}

	vocab := make(map[string]int, len(tokenizerJSON.Model.Vocab)+len(tokenizerJSON.AddedTokens))
	for token, id := range tokenizerJSON.Model.Vocab {
		vocab[token] = id
	}
	for _, added := range tokenizerJSON.AddedTokens {
		vocab[added.Content] = added.ID
	}

	var config TokenizerConfig
	configPath := filepath.Join(filepath.Dir(path), "tokenizer_config.json")
	if configData, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(configData, &config); err != nil {
			// fall back to the conventional spellings
			slog.Debug("ignoring tokenizer_config.json", "path", configPath, "error", err)
			config = TokenizerConfig{}
		}
	}

	lookup := func(configured TokenName, candidates []string) int {
		for _, token := range append([]string{string(configured)}, candidates...) {
			if id, ok := vocab[token]; ok && token != "" {
				return id
			}
		}
		return -1
	}

	special := SpecialTokens{
		Pad: lookup(config.PadToken, padCandidates),
		BOS: lookup(config.BOSToken, bosCandidates),
		EOS: lookup(config.EOSToken, eosCandidates),
	}
	if special.EOS < 0 {
		return special, fmt.Errorf("tokenizer %s has no end-of-sequence token", path)
	}
	if special.Pad < 0 {
		special.Pad = special.EOS
	}
	return special, nil
}
