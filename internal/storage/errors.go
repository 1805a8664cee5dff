package storage

import "errors"

// ErrNotFound is returned when a dataset or model does not exist or is not
// visible to the requesting owner.
var ErrNotFound = errors.New("storage: record not found")
