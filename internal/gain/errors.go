package gain

import "errors"

var ErrInvalidPolicy = errors.New("invalid gain policy")
