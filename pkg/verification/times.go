package verification

import (
	"fmt"
	"strconv"
)

// Times bounds how often a request must have been received. AtMost < 0
// means no upper bound.
type Times struct {
	AtLeast int `json:"atLeast"`
	AtMost  int `json:"atMost"`
}

func Once() Times              { return Exactly(1) }
func Never() Times             { return Exactly(0) }
func Exactly(n int) Times      { return Times{AtLeast: n, AtMost: n} }
func AtLeast(n int) Times      { return Times{AtLeast: n, AtMost: -1} }
func AtMost(n int) Times       { return Times{AtLeast: 0, AtMost: n} }
func Between(lo, hi int) Times { return Times{AtLeast: lo, AtMost: hi} }

// Matches reports whether count lies within the bounds.
func (t Times) Matches(count int) bool {
	if count < t.AtLeast {
		return false
	}
	return t.AtMost < 0 || count <= t.AtMost
}

// Validate rejects negative lower bounds and inverted ranges.
func (t Times) Validate() error {
	if t.AtLeast < 0 {
		return fmt.Errorf("atLeast must not be negative, got %d", t.AtLeast)
	}
	if t.AtMost >= 0 && t.AtMost < t.AtLeast {
		return fmt.Errorf("atMost %d is less than atLeast %d", t.AtMost, t.AtLeast)
	}
	return nil
}

func (t Times) String() string {
	switch {
	case t.AtLeast == t.AtMost:
		return "exactly " + count(t.AtMost)
	case t.AtMost < 0:
		return "at least " + count(t.AtLeast)
	case t.AtLeast == 0:
		return "at most " + count(t.AtMost)
	default:
		return "between " + strconv.Itoa(t.AtLeast) + " and " + strconv.Itoa(t.AtMost) + " times"
	}
}

func count(n int) string {
	if n == 1 {
		return "once"
	}
	return strconv.Itoa(n) + " times"
}
