package domain

import "errors"

// ErrNotFound is wrapped by stores when a hall, camera or student does not
// exist.
var ErrNotFound = errors.New("not found")
