package core

// ResultKind tells a successful answer apart from an empty one and from a
// failure of the data source.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultEmpty
	ResultSourceError
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultEmpty:
		return "empty"
	case ResultSourceError:
		return "source_error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result carries a value together with its kind. Err is set only for
// ResultSourceError.
type Result[T any] struct {
	Kind  ResultKind
	Value T
	Err   error
}

// Success wraps a value produced from available data.
func Success[T any](v T) Result[T] {
	return Result[T]{Kind: ResultSuccess, Value: v}
}

// Empty wraps a valid answer for which no data matched.
func Empty[T any](v T) Result[T] {
	return Result[T]{Kind: ResultEmpty, Value: v}
}

// SourceError reports that the data source could not be queried.
func SourceError[T any](err error) Result[T] {
	return Result[T]{Kind: ResultSourceError, Err: err}
}

// OK reports whether the result carries data.
func (r Result[T]) OK() bool {
	return r.Kind == ResultSuccess
}

// Then maps a successful value and keeps empty and error kinds untouched.
// The mapped value is still computed for empty results so callers get a
// well-formed zero-shaped answer.
func Then[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.Kind == ResultSourceError {
		return SourceError[U](r.Err)
	}
	return Result[U]{Kind: r.Kind, Value: f(r.Value)}
}
