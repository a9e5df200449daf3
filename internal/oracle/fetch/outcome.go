package fetch

import "fmt"

// Kind names a fetcher.
type Kind string

const (
	KindBlock       Kind = "block"
	KindTransaction Kind = "transaction"
	KindData        Kind = "data"
)

// Status classifies a fetch result.
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusTransient
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusTransient:
		return "transient_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of one fetch.
//
// Data is set only when Status is StatusFound. It holds a json.RawMessage for
// structured documents or a string for anything else.
type Outcome struct {
	Kind   Kind
	Status Status
	Data   any
	Err    error
}

// Found wraps fetched data.
func Found(kind Kind, data any) Outcome {
	return Outcome{Kind: kind, Status: StatusFound, Data: data}
}

// NotFound reports that upstream has no such object.
func NotFound(kind Kind) Outcome {
	return Outcome{Kind: kind, Status: StatusNotFound}
}

// Transient reports any other failure.
func Transient(kind Kind, err error) Outcome {
	return Outcome{Kind: kind, Status: StatusTransient, Err: err}
}
