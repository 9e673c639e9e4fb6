package trace

import (
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match all events.
type Filter struct {
	SessionID string
	Op        *Op
	// ErrorsOnly selects events carrying an error.
	ErrorsOnly bool
}

func (f *Filter) matches(event Event) bool {
	if f.SessionID != "" && event.SessionID != f.SessionID {
		return false
	}
	if f.Op != nil && event.Op != *f.Op {
		return false
	}
	if f.ErrorsOnly && event.Err == "" {
		return false
	}
	return true
}

// Reader reads events from a CBOR stream written by a Recorder.
type Reader struct {
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader returns a Reader for all events in r.
func NewReader(r io.Reader) *Reader {
	return NewFilteredReader(r, Filter{})
}

// NewFilteredReader returns a Reader for the events in r matching filter.
func NewFilteredReader(r io.Reader, filter Filter) *Reader {
	return &Reader{
		decoder: newDecoder(r),
		filter:  filter,
	}
}

// Next returns the next matching event, or io.EOF at the end of the stream.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// ReadAll returns all remaining matching events.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}
