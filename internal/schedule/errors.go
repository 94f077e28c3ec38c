package schedule

import "errors"

// ErrInvalidSlot reports a time that is not on the day grid or a span that does not
// fit inside it.
var ErrInvalidSlot = errors.New("invalid slot")
