package log

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// zerologObject adapts a LogObjectMarshaler so that Event.Fields embeds it
// as a nested JSON object instead of its Error() string.
type zerologObject struct {
	m zerolog.LogObjectMarshaler
}

func (o zerologObject) MarshalZerologObject(e *zerolog.Event) {
	o.m.MarshalZerologObject(e)
}

// extractStacktrace returns the stack captured by cockroachdb/errors, if any.
func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
