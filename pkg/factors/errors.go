package factors

import (
	"errors"
	"fmt"
)

// ErrUnknownFactor is matched by every *UnknownFactorError via errors.Is.
var ErrUnknownFactor = errors.New("unknown factor")

// UnknownFactorError is returned when a lookup key is not part of a closed
// factor table. Callers must treat it as an input error; there is no default.
type UnknownFactorError struct {
	Table string // "category", "region", "business type", "unit"
	Key   string
}

func (e *UnknownFactorError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Table, e.Key)
}

// Is reports whether target is ErrUnknownFactor.
func (e *UnknownFactorError) Is(target error) bool {
	return target == ErrUnknownFactor
}

func unknown(table, key string) error {
	return &UnknownFactorError{Table: table, Key: key}
}
