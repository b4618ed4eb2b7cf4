package pgmigrate

import "sort"

// Direction is the direction of a migration run.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ResolveDirection returns Up if desired lies above current and Down
// otherwise. A desired revision equal to current resolves to Down.
func ResolveDirection(current, desired int64) Direction {
	if desired > current {
		return Up
	}
	return Down
}

// SelectCandidates returns the identifiers to execute, in execution order.
//
// Up selects current < id <= desired in ascending order; the migration at
// current is already applied. Down selects desired <= id <= current in
// descending order, so migrating down to a revision also rolls back that
// revision.
func SelectCandidates(available []int64, current, desired int64, dir Direction) []int64 {
	var selected []int64
	if dir == Up {
		selected = filter(available, func(id int64) bool {
			return id > current && id <= desired
		})
		sort.Slice(selected, func(i, j int) bool { return selected[i] < selected[j] })
	} else {
		selected = filter(available, func(id int64) bool {
			return id >= desired && id <= current
		})
		sort.Slice(selected, func(i, j int) bool { return selected[i] > selected[j] })
	}
	return selected
}

// filter returns a new slice containing all identifiers in the slice that satisfy the predicate f.
func filter(items []int64, f func(int64) bool) []int64 {
	filtered := []int64{}
	for _, v := range items {
		if f(v) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
