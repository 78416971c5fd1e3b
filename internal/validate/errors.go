package validate

import "errors"

var ErrSizeMismatch = errors.New("result and ground truth differ in size")
