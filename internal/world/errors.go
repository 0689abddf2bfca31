package world

import "errors"

var ErrWorldClosed = errors.New("world is closed")
