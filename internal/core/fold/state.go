// Package fold holds the chain state threaded through the import of one
// document. Each revision is planned against the current State, the plan is
// written to the graph, and Advance yields the State for the next revision.
package fold

import (
	"errors"
	"fmt"
	"time"

	"github.com/evoapps/evotrees/internal/core/content"
	"github.com/evoapps/evotrees/internal/core/model"
)

var ErrOutOfOrder = errors.New("revision out of chronological order")

// State is the fold accumulator for one document.
//
// States form a single line: the seen-set is shared between a State and its
// successors, so a given State must be advanced at most once. Earlier States
// still answer Seen as of their own position in the line.
type State struct {
	started      bool
	prevRevision int64
	prevTime     time.Time

	// prevContent starts at the synthetic empty root, which is never
	// persisted; linked reports whether prevContent is a real node.
	prevContent string
	linked      bool

	steps int
	seen  map[string]int
}

// New returns the state before the first revision of a document.
func New() State {
	return State{
		prevContent: content.EmptyDigest,
		seen:        make(map[string]int),
	}
}

// Checkpoint summarises the persisted history of a document.
type Checkpoint struct {
	Revisions      int
	LastRevisionID int64
	LastTimestamp  time.Time
	// ContentHashes in order of first appearance in the document.
	ContentHashes []string
}

// Restore rebuilds the state reached after the revisions in cp.
func Restore(cp Checkpoint) State {
	s := New()
	if cp.Revisions == 0 {
		return s
	}
	s.started = true
	s.prevRevision = cp.LastRevisionID
	s.prevTime = cp.LastTimestamp

	for i, h := range cp.ContentHashes {
		s.seen[h] = i
	}
	s.steps = cp.Revisions

	// A leading empty content matched the root and never headed the chain.
	// Every later first appearance was a change.
	hashes := cp.ContentHashes
	if len(hashes) > 0 && hashes[0] == content.EmptyDigest {
		hashes = hashes[1:]
	}
	if n := len(hashes); n > 0 {
		s.prevContent = hashes[n-1]
		s.linked = true
	}
	return s
}

// Started reports whether at least one revision has been folded.
func (s State) Started() bool { return s.started }

// PreviousRevision returns the id of the last folded revision.
func (s State) PreviousRevision() (int64, bool) {
	return s.prevRevision, s.started
}

// PreviousContent returns the hash at the head of the EDIT chain and whether
// that head is a persisted Content node.
func (s State) PreviousContent() (string, bool) {
	return s.prevContent, s.linked
}

// Seen reports whether hash entered the EDIT chain before this state.
func (s State) Seen(hash string) bool {
	i, ok := s.seen[hash]
	return ok && i < s.steps
}

// CheckOrder rejects revisions that do not move forward in time.
func (s State) CheckOrder(rev model.Revision) error {
	if !s.started {
		return nil
	}
	if rev.ID <= s.prevRevision {
		return fmt.Errorf("%w: revision %d follows %d", ErrOutOfOrder, rev.ID, s.prevRevision)
	}
	if !rev.Timestamp.IsZero() && !s.prevTime.IsZero() && rev.Timestamp.Before(s.prevTime) {
		return fmt.Errorf("%w: revision %d at %s precedes %s", ErrOutOfOrder,
			rev.ID, rev.Timestamp.Format(time.RFC3339), s.prevTime.Format(time.RFC3339))
	}
	return nil
}

// Step is the set of graph mutations for one revision.
type Step struct {
	RevisionID int64
	Hash       string

	// PARENT_OF from Parent to this revision.
	LinkParent bool
	Parent     int64

	// EDIT from EditFrom to this content.
	LinkEdit bool
	EditFrom string

	// Change marks content new to the document; Revert marks content seen
	// earlier in the document. Neither is set when the content is unchanged.
	Change bool
	Revert bool

	timestamp time.Time
}

// Plan computes the mutations for rev and its content without side effects.
func (s State) Plan(rev model.Revision, c model.Content) Step {
	st := Step{
		RevisionID: rev.ID,
		Hash:       c.Hash,
		timestamp:  rev.Timestamp,
	}
	if s.started {
		st.LinkParent = true
		st.Parent = s.prevRevision
	}

	switch {
	case c.Hash == s.prevContent:
		// unchanged text, e.g. a null edit
	case s.Seen(c.Hash):
		st.Revert = true
	default:
		st.Change = true
		if s.linked {
			st.LinkEdit = true
			st.EditFrom = s.prevContent
		}
	}
	return st
}

// Advance returns the state after st has been committed.
func (s State) Advance(st Step) State {
	next := s
	next.started = true
	next.prevRevision = st.RevisionID
	if !st.timestamp.IsZero() {
		next.prevTime = st.timestamp
	}
	switch {
	case st.Change:
		next.prevContent = st.Hash
		next.linked = true
		if _, ok := s.seen[st.Hash]; !ok {
			s.seen[st.Hash] = s.steps
		}
	case !s.started && st.Hash == s.prevContent:
		// empty first revision, a later return to it is a revert
		s.seen[st.Hash] = s.steps
	}
	next.steps = s.steps + 1
	return next
}
