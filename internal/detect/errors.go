package detect

import "errors"

var (
	// ErrNoResponse is returned when the sanity check GET gets no response
	// headers. Probing such a target would classify noise.
	ErrNoResponse = errors.New("no response to the initial GET request")

	// ErrUnknownProbe is returned by Select for an id no probe has.
	ErrUnknownProbe = errors.New("unknown probe")
)
