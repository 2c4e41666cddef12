// Package grading decides answer correctness and scores test sessions.
package grading

// Validate reports whether selected matches correct as a set. Order and
// duplicates are ignored. An empty selection is never correct.
func Validate(correct, selected []int) bool {
	if len(selected) == 0 {
		return false
	}
	want := toSet(correct)
	got := toSet(selected)
	if len(want) != len(got) {
		return false
	}
	for v := range got {
		if _, ok := want[v]; !ok {
			return false
		}
	}
	return true
}

func toSet(values []int) map[int]struct{} {
	set := make(map[int]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
