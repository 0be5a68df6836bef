package patch

// Field represents an optional update to a single column. The zero value
// leaves the column untouched; Set marks it for writing, including writes
// of nil for nullable columns.
type Field[T any] struct {
	Valid bool
	Value T
}

func Set[T any](v T) Field[T] {
	return Field[T]{Valid: true, Value: v}
}

// Coalesce returns the value pointed to by ptr if it's not nil, otherwise returns fallback
func Coalesce[T any](ptr *T, fallback T) T {
	if ptr != nil {
		return *ptr
	}
	return fallback
}
