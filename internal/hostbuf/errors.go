package hostbuf

import "errors"

var ErrSourceUnavailable = errors.New("source unavailable")
