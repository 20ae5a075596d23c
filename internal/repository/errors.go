package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is the root of every "record does not exist" error returned by
// this package. Test with errors.Is.
var ErrNotFound = errors.New("record not found")

var (
	ErrRuleNotFound  = fmt.Errorf("automation rule: %w", ErrNotFound)
	ErrItemNotFound  = fmt.Errorf("item: %w", ErrNotFound)
	ErrBoardNotFound = fmt.Errorf("board: %w", ErrNotFound)
)
