package vcs

import (
	"fmt"
	"strconv"
	"strings"
)

// unsignedMinusOne is how git sometimes prints -1 for the count part of a
// hunk range. The observed convention is that it stands for an empty range;
// it is normalized to 0 as a workaround for that upstream defect rather
// than as a proven semantic for every such case.
const unsignedMinusOne = "18446744073709551615"

// Range is the half-open line interval [Start, Start+Count) addressed by a
// hunk header.
type Range struct {
	Start int
	Count int
}

// ParseRange reads the "start[,count]" grammar of a hunk header. An
// omitted count means 1.
func ParseRange(s string) (Range, error) {
	sep := strings.IndexByte(s, ',')
	if sep == -1 {
		start, err := strconv.Atoi(s)
		if err != nil {
			return Range{}, fmt.Errorf("malformed range %q: %w", s, err)
		}
		return Range{Start: start, Count: 1}, nil
	}

	start, err := strconv.Atoi(s[:sep])
	if err != nil {
		return Range{}, fmt.Errorf("malformed range %q: %w", s, err)
	}

	countStr := s[sep+1:]
	if countStr == unsignedMinusOne {
		return Range{Start: start, Count: 0}, nil
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return Range{}, fmt.Errorf("malformed range %q: %w", s, err)
	}
	if count < 0 {
		return Range{}, fmt.Errorf("malformed range %q: negative count", s)
	}
	return Range{Start: start, Count: count}, nil
}

// End returns the first line past the range.
func (r Range) End() int {
	return r.Start + r.Count
}

func (r Range) String() string {
	return strconv.Itoa(r.Start) + "," + strconv.Itoa(r.Count)
}
