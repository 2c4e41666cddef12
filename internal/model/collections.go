package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// QuestionOrder is the ordered list of question ids fixed at session creation.
type QuestionOrder []uuid.UUID

// IndexOf returns the position of id, or -1.
func (o QuestionOrder) IndexOf(id uuid.UUID) int {
	return slices.Index(o, id)
}

// Contains reports whether id is part of the order.
func (o QuestionOrder) Contains(id uuid.UUID) bool {
	return o.IndexOf(id) >= 0
}

// At returns the id at position i and whether i is in range.
func (o QuestionOrder) At(i int) (uuid.UUID, bool) {
	if i < 0 || i >= len(o) {
		return uuid.Nil, false
	}
	return o[i], true
}

// IDSet is a set of question ids. It serializes as a sorted JSON array.
type IDSet map[uuid.UUID]struct{}

func NewIDSet(ids ...uuid.UUID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Set adds or removes id depending on on.
func (s IDSet) Set(id uuid.UUID, on bool) {
	if on {
		s[id] = struct{}{}
		return
	}
	delete(s, id)
}

// Sorted returns the members ordered by their string form.
func (s IDSet) Sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// PositionSet is a set of zero-based question positions. It serializes as
// a sorted JSON array.
type PositionSet map[int]struct{}

func NewPositionSet(positions ...int) PositionSet {
	s := make(PositionSet, len(positions))
	for _, p := range positions {
		s[p] = struct{}{}
	}
	return s
}

func (s PositionSet) Has(p int) bool {
	_, ok := s[p]
	return ok
}

// Set adds or removes p depending on on.
func (s PositionSet) Set(p int, on bool) {
	if on {
		s[p] = struct{}{}
		return
	}
	delete(s, p)
}

func (s PositionSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func (s PositionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *PositionSet) UnmarshalJSON(data []byte) error {
	var positions []int
	if err := json.Unmarshal(data, &positions); err != nil {
		return err
	}
	*s = NewPositionSet(positions...)
	return nil
}

// PositionAnswers maps a question position to the selected option indices.
type PositionAnswers map[int][]int

// Merge upserts every entry of patch. An entry with an empty selection
// clears that position.
func (a PositionAnswers) Merge(patch PositionAnswers) {
	for pos, selected := range patch {
		sel := NormalizeSelection(selected)
		if len(sel) == 0 {
			delete(a, pos)
			continue
		}
		a[pos] = sel
	}
}

// StudyAnswer is the per-question record kept by a study session.
type StudyAnswer struct {
	Selected   []int     `json:"selected"`
	Correct    bool      `json:"correct"`
	TimeSpent  int       `json:"time_spent"`
	AnsweredAt time.Time `json:"answered_at"`
}

// StudyAnswers maps a question id to its answer record.
type StudyAnswers map[uuid.UUID]StudyAnswer

// Merge upserts every entry of patch.
func (a StudyAnswers) Merge(patch StudyAnswers) {
	for id, ans := range patch {
		ans.Selected = NormalizeSelection(ans.Selected)
		a[id] = ans
	}
}

// NormalizeSelection returns the selection sorted and deduplicated.
// Negative indices are dropped.
func NormalizeSelection(selected []int) []int {
	out := make([]int, 0, len(selected))
	for _, v := range selected {
		if v >= 0 {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// DecodeCollection unmarshals a stored collection into dst. Empty input
// leaves dst untouched.
func DecodeCollection(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode collection: %w", err)
	}
	return nil
}
