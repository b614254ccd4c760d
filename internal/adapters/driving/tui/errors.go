package tui

import "errors"

// ErrMissingLoader is returned when no snapshot loader is provided.
var ErrMissingLoader = errors.New("tui: snapshot loader is required")
