// Package source defines where document histories come from.
package source

import (
	"context"
	"errors"
	"iter"

	"github.com/evoapps/evotrees/internal/core/model"
)

var ErrPageNotFound = errors.New("page not found")

// RevisionSource yields the revisions of one document oldest first. The
// sequence is lazy; an error ends it.
type RevisionSource interface {
	History(ctx context.Context, title string) iter.Seq2[model.RawRevision, error]
}

// Static serves histories held in memory.
type Static struct {
	Pages map[string][]model.RawRevision
	// Errs[title] is yielded after the page's revisions.
	Errs map[string]error
}

func NewStatic() *Static {
	return &Static{
		Pages: make(map[string][]model.RawRevision),
		Errs:  make(map[string]error),
	}
}

// Add appends revisions to title.
func (s *Static) Add(title string, revs ...model.RawRevision) *Static {
	s.Pages[title] = append(s.Pages[title], revs...)
	return s
}

func (s *Static) History(ctx context.Context, title string) iter.Seq2[model.RawRevision, error] {
	return func(yield func(model.RawRevision, error) bool) {
		revs, ok := s.Pages[title]
		if !ok {
			if err, failing := s.Errs[title]; failing {
				yield(model.RawRevision{}, err)
				return
			}
			yield(model.RawRevision{}, ErrPageNotFound)
			return
		}
		for _, r := range revs {
			if err := ctx.Err(); err != nil {
				yield(model.RawRevision{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err, failing := s.Errs[title]; failing {
			yield(model.RawRevision{}, err)
		}
	}
}
