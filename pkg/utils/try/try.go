package try

// something have method `Fatal`.
//
// For example in standard libraries: *testing.T, log.Logger
type Fataler interface {
	Fatal(...any)
}

// Either wraps a pair of (T, error), as functions return.
//
// When error is nil, such Either is "ok" and T value is valid.
// Otherwise it is "no good", and T value is not valid.
type Either[T any] interface {
	// Get returns the pair as it was.
	Get() (T, error)

	// OrFatal returns the value if Either is "ok".
	//
	// Otherwise, it calls ftl.Fatal(err).
	// If ftl has "Helper()" method (like *testing.T), also that is called before `Fatal`.
	OrFatal(ftl Fataler) T

	// OrDefault returns the value if Either is "ok", or d.
	OrDefault(d T) T
}

func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{ok}
	}
	return tryNg[T]{ng}
}

type tryOk[T any] struct {
	value T
}

type tryNg[T any] struct {
	err error
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper() // think *testing.T
	}
	ftl.Fatal(ng.err)

	return *new(T)
}
