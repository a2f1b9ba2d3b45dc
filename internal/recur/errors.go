package recur

import (
	"errors"
	"fmt"
)

// ErrInvalidRule is matched by every validation failure returned from
// ParseRule, Rule.Validate and NewIterator.
var ErrInvalidRule = errors.New("recur: invalid rule")

// RuleError describes which part of a recurrence rule was rejected.
type RuleError struct {
	Part   string
	Value  string
	Reason string
}

func (e *RuleError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("recur: invalid %s: %s", e.Part, e.Reason)
	}
	return fmt.Sprintf("recur: invalid %s %q: %s", e.Part, e.Value, e.Reason)
}

func (e *RuleError) Is(target error) bool {
	return target == ErrInvalidRule
}

func invalid(part, value, reason string) error {
	return &RuleError{Part: part, Value: value, Reason: reason}
}
