package vqa

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"coattn-go/purego/tensor"
)

// Batch is a collated group of instances.
type Batch struct {
	Indices   []int
	Questions []string

	// token matrices [batch, length]
	QuestionTokens           [][]int
	AnswerTokens             [][]int
	ShiftedRightAnswerTokens [][]int
	QuestionMask             *tensor.Mask

	Images []Image

	// Features stacks region features zero-padded to the longest image,
	// [batch, regions, d_model]. Nil when no instance carries features.
	Features    *tensor.Tensor
	FeatureMask *tensor.Mask
}

// Len returns the number of instances in the batch.
func (b *Batch) Len() int {
	return len(b.Indices)
}

// Collate stacks instances into a Batch. Token rows are right-padded with
// pad to the longest row.
func Collate(indices []int, instances []*Instance, pad int) (*Batch, error) {
	b := &Batch{
		Indices:                  indices,
		Questions:                make([]string, len(instances)),
		QuestionTokens:           make([][]int, len(instances)),
		AnswerTokens:             make([][]int, len(instances)),
		ShiftedRightAnswerTokens: make([][]int, len(instances)),
		Images:                   make([]Image, len(instances)),
	}

	regions, width := 0, 0
	for i, inst := range instances {
		b.Questions[i] = inst.Question
		b.QuestionTokens[i] = inst.QuestionTokens
		b.AnswerTokens[i] = inst.AnswerTokens
		b.ShiftedRightAnswerTokens[i] = inst.ShiftedRightAnswerTokens
		b.Images[i] = inst.Image

		if f := inst.Image.Features; f != nil {
			if width != 0 && f.Shape[1] != width {
				return nil, fmt.Errorf("%w: instance %d has feature width %d, want %d",
					tensor.ErrShapeMismatch, indices[i], f.Shape[1], width)
			}
			width = f.Shape[1]
			regions = max(regions, f.Shape[0])
		}
	}

	b.QuestionTokens = padRows(b.QuestionTokens, pad)
	b.AnswerTokens = padRows(b.AnswerTokens, pad)
	b.ShiftedRightAnswerTokens = padRows(b.ShiftedRightAnswerTokens, pad)
	b.QuestionMask = tensor.PaddingMaskFromTokens(b.QuestionTokens, pad)

	if width > 0 {
		b.Features = tensor.NewTensor(len(instances), regions, width)
		lengths := make([]int, len(instances))
		for i, inst := range instances {
			if f := inst.Image.Features; f != nil {
				copy(b.Features.Data[i*regions*width:], f.Data)
				lengths[i] = f.Shape[0]
			}
		}
		b.FeatureMask = tensor.NewPaddingMask(lengths, regions)
	}
	return b, nil
}

func padRows(rows [][]int, pad int) [][]int {
	n := 0
	for _, row := range rows {
		n = max(n, len(row))
	}
	out := make([][]int, len(rows))
	for i, row := range rows {
		out[i] = make([]int, n)
		copy(out[i], row)
		for j := len(row); j < n; j++ {
			out[i][j] = pad
		}
	}
	return out
}

// Loader batches a Dataset, assembling items concurrently.
type Loader struct {
	dataset Dataset
	pad     int

	BatchSize    int
	Workers      int
	Shuffle      bool
	Seed         int64
	ShowProgress bool

	// Epoch counts completed calls to Each. With Shuffle set, pass n uses
	// the permutation seeded by Seed+n, so passes differ from each other
	// but a run is reproducible from Seed. Set it to resume a run.
	Epoch int
}

// NewLoader creates a loader using cfg's batching settings. pad is the
// padding index of the dataset vocabulary.
func NewLoader(dataset Dataset, cfg *Config, pad int) *Loader {
	return &Loader{
		dataset:   dataset,
		pad:       pad,
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Shuffle:   cfg.Shuffle,
		Seed:      cfg.Seed,
	}
}

// NumBatches returns the number of batches per pass, counting a final
// partial batch.
func (l *Loader) NumBatches() int {
	return (l.dataset.Len() + l.BatchSize - 1) / l.BatchSize
}

// order returns the item order for pass epoch.
func (l *Loader) order(epoch int) []int {
	if l.Shuffle {
		return rand.New(rand.NewSource(l.Seed + int64(epoch))).Perm(l.dataset.Len())
	}
	order := make([]int, l.dataset.Len())
	for i := range order {
		order[i] = i
	}
	return order
}

// Load assembles the items at indices and collates them.
func (l *Loader) Load(ctx context.Context, indices []int) (*Batch, error) {
	instances := make([]*Instance, len(indices))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.Workers, 1))
	for i, idx := range indices {
		i, idx := i, idx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			inst, err := l.dataset.GetItem(idx)
			if err != nil {
				return err
			}
			instances[i] = inst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Collate(indices, instances, l.pad)
}

// Each calls fn for every batch of one pass, stopping at the first error.
// Every call advances Epoch.
func (l *Loader) Each(ctx context.Context, fn func(*Batch) error) error {
	var bar *progressbar.ProgressBar
	if l.ShowProgress {
		bar = progressbar.NewOptions(l.NumBatches(),
			progressbar.OptionSetDescription("Loading"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	order := l.order(l.Epoch)
	l.Epoch++
	for start := 0; start < len(order); start += l.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := l.Load(ctx, order[start:min(start+l.BatchSize, len(order))])
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}

		if bar != nil {
			bar.Add(1)
		}
	}

	if bar != nil {
		bar.Finish()
	}
	return nil
}
