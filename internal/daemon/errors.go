package daemon

import (
	"errors"

	"github.com/schaltwerk/schaltwerkd/internal/schalterr"
)

// errKind extracts the structured error kind for the response's Kind
// field, so schaltwerkctl can map it to an exit code without parsing
// message text (§6.2).
func errKind(err error) schalterr.Kind {
	var e *schalterr.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return schalterr.Internal
}
