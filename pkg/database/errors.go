package database

import "errors"

// ErrUnreachable indicates the warehouse could not be reached.
var ErrUnreachable = errors.New("warehouse unreachable")
