// Package match implements the soft (fuzzy, 0..1) condition scorer.
// Score is total and side-effect-free: every (condition, context) pair
// produces a value in [0,1], never an error.
package match

import (
	"math"
	"strconv"
	"strings"

	"github.com/ctxrules/engine/internal/rules"
)

// Score scores a single condition against a context snapshot.
func Score(cond rules.Condition, ctx rules.ContextMap) float64 {
	actual, present := ctx[cond.Key]

	switch cond.Op {
	case rules.OpEqual:
		if !present {
			return 0.5
		}
		if actual == cond.Value {
			return 1.0
		}
		return 0.0

	case rules.OpNotEqual:
		if !present {
			return 0.5
		}
		if actual != cond.Value {
			return 1.0
		}
		return 0.0
	}

	// Every remaining op treats a missing key as uncertain (0.5).
	if !present {
		return 0.5
	}

	switch cond.Op {
	case rules.OpIn:
		for _, opt := range splitCSV(cond.Value) {
			if actual == opt {
				return 1.0
			}
		}
		return 0.0

	case rules.OpGreaterThan, rules.OpGreaterEqual, rules.OpLessThan, rules.OpLessEqual:
		return scoreNumeric(cond.Op, actual, cond.Value)

	case rules.OpRange:
		return scoreRange(actual, cond.Value)

	default:
		return 0.0
	}
}

func scoreNumeric(op, actual, value string) float64 {
	actualNum, aOk := tryParseFloat(actual)
	valueNum, vOk := tryParseFloat(value)
	if !aOk || !vOk {
		// Can't parse as number → hard fall back to string equality.
		if actual == value {
			return 1.0
		}
		return 0.0
	}

	margin := math.Max(math.Abs(valueNum)*0.1, 1.0)

	switch op {
	case rules.OpGreaterThan:
		if actualNum > valueNum {
			return 1.0
		}
		return decay(valueNum-actualNum, margin)
	case rules.OpGreaterEqual:
		if actualNum >= valueNum {
			return 1.0
		}
		return decay(valueNum-actualNum, margin)
	case rules.OpLessThan:
		if actualNum < valueNum {
			return 1.0
		}
		return decay(actualNum-valueNum, margin)
	case rules.OpLessEqual:
		if actualNum <= valueNum {
			return 1.0
		}
		return decay(actualNum-valueNum, margin)
	default:
		return 0.0
	}
}

func scoreRange(actual, value string) float64 {
	parts := splitCSV(value)
	if len(parts) != 2 {
		return 0.0
	}
	lo, loOk := tryParseFloat(parts[0])
	hi, hiOk := tryParseFloat(parts[1])
	if !loOk || !hiOk {
		return 0.0
	}
	actualNum, aOk := tryParseFloat(actual)
	if !aOk {
		return 0.0
	}

	if actualNum >= lo && actualNum <= hi {
		return 1.0
	}
	var dist float64
	if actualNum < lo {
		dist = lo - actualNum
	} else {
		dist = actualNum - hi
	}
	margin := math.Max((hi-lo)*0.1, 1.0)
	return decay(dist, margin)
}

func decay(diff, margin float64) float64 {
	return math.Max(0.0, 1.0-math.Abs(diff)/margin)
}

func tryParseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func splitCSV(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
