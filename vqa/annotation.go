package vqa

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cespare/xxhash/v2"
)

// RawImage is one entry of the "images" list.
type RawImage struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

// RawAnnotation is one entry of the "annotations" list.
type RawAnnotation struct {
	ImageID  int      `json:"image_id"`
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

// RawData is the decoded annotation file.
type RawData struct {
	Images      []RawImage      `json:"images"`
	Annotations []RawAnnotation `json:"annotations"`
}

// LoadRawData reads an annotation file.
func LoadRawData(path string) (*RawData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}

	var raw RawData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &raw, nil
}

// Annotation is one question paired with a single answer variant and the
// image it refers to.
type Annotation struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	ImageID  int    `json:"image_id"`
	Filename string `json:"filename"`
}

// BuildAnnotations flattens raw annotations into one record per answer, in
// source order. The first image with a matching id wins. Annotations whose
// image is missing are skipped.
func BuildAnnotations(raw *RawData) []Annotation {
	filenames := make(map[int]string, len(raw.Images))
	for _, img := range raw.Images {
		if _, ok := filenames[img.ID]; !ok {
			filenames[img.ID] = img.Filename
		}
	}

	var (
		annotations []Annotation
		unmatched   int
	)
	for _, ann := range raw.Annotations {
		filename, ok := filenames[ann.ImageID]
		if !ok {
			unmatched++
			continue
		}
		for _, answer := range ann.Answers {
			annotations = append(annotations, Annotation{
				Question: ann.Question,
				Answer:   answer,
				ImageID:  ann.ImageID,
				Filename: filename,
			})
		}
	}

	slog.Debug("annotations built", "records", len(annotations), "unmatched", unmatched)
	return annotations
}

// Fingerprint hashes an annotation list, so that two builds over the same
// source can be compared cheaply.
func Fingerprint(annotations []Annotation) uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	for _, ann := range annotations {
		binary.LittleEndian.PutUint64(buf, uint64(ann.ImageID))
		h.Write(buf)
		for _, s := range []string{ann.Question, ann.Answer, ann.Filename} {
			h.WriteString(s)
			h.Write([]byte{0})
		}
	}
	return h.Sum64()
}
