package health

// Checker reports whether a dependency is currently healthy.
type Checker interface {
	Check() error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func() error

func (f CheckerFunc) Check() error {
	return f()
}
