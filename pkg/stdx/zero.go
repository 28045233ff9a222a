package stdx

// Zero returns the zero value of T.
func Zero[T any]() T {
	var zero T
	return zero
}

// Must returns v, or panics when err is set.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
