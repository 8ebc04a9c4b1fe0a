package cmp

// BiPredicator tells a and b are "equal" in some sense.
type BiPredicator[V any, U any] func(a V, b U) bool

func SliceEq[T comparable](a []T, b []T) bool {
	return SliceEqWith(a, b, func(a, b T) bool { return a == b })
}

// check a and b have equivalent items in the same order.
func SliceEqWith[T any, U any](a []T, b []U, pred BiPredicator[T, U]) bool {
	if len(a) != len(b) {
		return false
	}

	for nth := range a {
		if !pred(a[nth], b[nth]) {
			return false
		}
	}

	return true
}

// check 2 slice has same content but its ordering.
//
// example:
//
//	SliceContentEq([]string{"a", "b", "c"}, []string{"c", "b", "a"})        // ==> true
//	SliceContentEq([]string{"a", "b", "c", "c"}, []string{"a", "b", "c"})   // ==> false. left has 2 "c"s but right has only 1.
func SliceContentEq[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	count := make(map[T]int, len(a))
	for _, v := range a {
		count[v] += 1
	}
	for _, v := range b {
		if count[v] == 0 {
			return false
		}
		count[v] -= 1
	}
	return true
}
