// Package diff computes line-oriented text differences between document
// versions for side-by-side comparison in the review UI.
package diff

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

type Op string

const (
	OpEqual  Op = "equal"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Segment is one run of the comparison output. Concatenating the Equal and
// Insert segments reproduces the newer text; Equal and Delete reproduce the
// older text.
type Segment struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Compute diffs two version texts with Myers diff plus semantic cleanup,
// which merges trivial equalities so the output reads as human-sized edits.
// Identical inputs yield a single Equal segment; an empty older text yields
// a single Insert of the newer text.
func Compute(older, newer string) []Segment {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(older, newer, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	segments := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		segments = append(segments, Segment{Op: opFor(d.Type), Text: d.Text})
	}
	return segments
}

func opFor(t diffmatchpatch.Operation) Op {
	switch t {
	case diffmatchpatch.DiffInsert:
		return OpInsert
	case diffmatchpatch.DiffDelete:
		return OpDelete
	default:
		return OpEqual
	}
}
