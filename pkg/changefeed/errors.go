package changefeed

import "errors"

// ErrClosed is returned when publishing to or subscribing on a closed feed
var ErrClosed = errors.New("change feed closed")
