package convparams

import "errors"

var (
	ErrMalformedInput         = errors.New("malformed parameter blob")
	ErrInvalidChannelGrouping = errors.New("channel count not divisible by lane width")
)
