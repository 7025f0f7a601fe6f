// Package entity maps raw revision records onto the Revision and Content
// entities persisted in the graph.
package entity

import (
	"github.com/evoapps/evotrees/internal/core/model"
)

// Hasher digests raw text. ok is false when the text was missing or
// unencodable and the empty digest was substituted.
type Hasher interface {
	Hash(raw *string) (digest string, ok bool)
}

type Projector interface {
	Project(raw string) string
}

type Builder struct {
	Hasher    Hasher
	Projector Projector
}

func NewBuilder(hasher Hasher, projector Projector) *Builder {
	return &Builder{
		Hasher:    hasher,
		Projector: projector,
	}
}

// Build splits one raw revision into its Revision and Content. It performs
// no I/O.
func (b *Builder) Build(raw model.RawRevision) (model.Revision, model.Content) {
	rev := model.Revision{
		ID:        raw.ID,
		Timestamp: raw.Timestamp,
	}

	hash, ok := b.Hasher.Hash(raw.Text)
	// stored text must agree with the hash that identifies it
	var text string
	if ok {
		text = *raw.Text
	}

	c := model.Content{
		Hash:      hash,
		RawText:   text,
		PlainText: b.Projector.Project(text),
	}

	return rev, c
}
