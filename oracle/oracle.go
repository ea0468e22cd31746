// Package oracle is the client side of the external content-quality
// classifier used to pre-check sampled files.
package oracle

import (
	"context"
	"strings"
)

// File is one item from a submitted batch.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// IsImage reports whether the file should be sent to the oracle as an image.
func (f File) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.MimeType), "image/")
}

// Context describes the bounty the file is evaluated against.
type Context struct {
	Title       string
	Description string
	Tags        []string
}

// Verdict is the oracle's judgement of a single file.
type Verdict struct {
	IsValid  bool   `json:"isValid"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Evaluator scores a file against a bounty. Implementations may fail on
// network or parse errors; callers decide how to degrade.
type Evaluator interface {
	Evaluate(ctx context.Context, file File, bounty Context) (Verdict, error)
}
