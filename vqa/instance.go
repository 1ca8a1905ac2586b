package vqa

import "fmt"

// Instance is one training example.
type Instance struct {
	Question                 string
	QuestionTokens           []int
	AnswerTokens             []int
	ShiftedRightAnswerTokens []int
	Image                    Image
}

// Assemble resolves an annotation into an Instance.
//
// The shifted answer is the encoded answer moved one step left and padded at
// the end; it is the decoder target. End-of-sequence tokens are then replaced
// by padding in the answer itself, which serves as the decoder input.
func Assemble(ann Annotation, vocab Vocabulary, images ImageResolver) (*Instance, error) {
	answer, err := vocab.EncodeAnswer(ann.Answer)
	if err != nil {
		return nil, fmt.Errorf("encode answer %q: %w", ann.Answer, err)
	}

	pad, eos := vocab.PaddingIdx(), vocab.EOSIdx()

	shifted := make([]int, len(answer))
	if len(answer) > 0 {
		copy(shifted, answer[1:])
		shifted[len(shifted)-1] = pad
	}

	for i, tok := range answer {
		if tok == eos {
			answer[i] = pad
		}
	}

	question, err := vocab.EncodeQuestion(ann.Question)
	if err != nil {
		return nil, fmt.Errorf("encode question %q: %w", ann.Question, err)
	}

	image, err := images.Resolve(ann.Filename)
	if err != nil {
		return nil, fmt.Errorf("resolve image: %w", err)
	}

	return &Instance{
		Question:                 ann.Question,
		QuestionTokens:           question,
		AnswerTokens:             answer,
		ShiftedRightAnswerTokens: shifted,
		Image:                    image,
	}, nil
}
