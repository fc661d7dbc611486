package utils

func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// OptionalString returns nil for an empty string so JSON omits the field.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ClonePtr copies the pointed-to value so the result does not alias v.
func ClonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
