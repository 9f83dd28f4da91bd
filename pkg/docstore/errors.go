package docstore

import "errors"

// ErrUnreachable indicates the document store could not be reached.
var ErrUnreachable = errors.New("document store unreachable")
