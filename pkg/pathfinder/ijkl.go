package pathfinder

import (
	"strconv"
	"strings"
)

// ijklTxtToNums expands a Cost/OutOfService port or channel spec — an int,
// or a comma-separated list of ints and "start-end" ranges like
// "1-10,12,15,17-20" — into the set of numbers it names.
func ijklTxtToNums(txt string) (map[int]bool, error) {
	out := map[int]bool{}
	for _, part := range strings.Split(txt, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) == 1 {
			n, err := strconv.Atoi(bounds[0])
			if err != nil {
				return nil, err
			}
			out[n] = true
			continue
		}
		start, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nil, err
		}
		end, err := strconv.Atoi(bounds[1])
		if err != nil {
			return nil, err
		}
		for n := start; n <= end; n++ {
			out[n] = true
		}
	}
	return out, nil
}

// ijklValueToNums accepts either a JSON float64 (a single pin/channel
// number, the shape a Cost entry's "i"/"k" field takes when it names a bare
// number) or a string spec, and returns the set of numbers it names.
func ijklValueToNums(val any) (map[int]bool, error) {
	switch v := val.(type) {
	case float64:
		return map[int]bool{int(v): true}, nil
	case string:
		return ijklTxtToNums(v)
	default:
		return nil, nil
	}
}

// ijklIsMatchCh reports whether chNo is named by a Cost entry's "j" field:
// either the "*" wildcard, a bare number, or a range spec.
func ijklIsMatchCh(val any, chNo int) bool {
	if s, ok := val.(string); ok && s == "*" {
		return true
	}
	nums, err := ijklValueToNums(val)
	if err != nil || nums == nil {
		return false
	}
	return nums[chNo]
}
