package document

import "errors"

// ErrTooDeep indicates a document nests deeper than MaxDepth.
var ErrTooDeep = errors.New("document nesting exceeds maximum depth")

// ErrUnsupported indicates a decoded value of a type Normalize cannot represent.
var ErrUnsupported = errors.New("unsupported document value")
