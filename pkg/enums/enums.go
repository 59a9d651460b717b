package enums

import (
	"fmt"
	"slices"
)

func isOneOf[T ~string](valid []T, value T) bool {
	return slices.Contains(valid, value)
}

func parseOneOf[T ~string](valid []T, value, kind string) (T, error) {
	for _, candidate := range valid {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
