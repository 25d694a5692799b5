package domain

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidVersion = errors.New("invalid version")

// Version is a dotted numeric version with two to four fields
// (major.minor[.build[.revision]]). There are no pre-release semantics.
type Version []int

// ParseVersion accepts "3.0", "3.0.196" or "3.0.196.1". Every field must be a
// non-negative decimal integer.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidVersion
	}
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, ErrInvalidVersion
	}
	v := make(Version, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, ErrInvalidVersion
		}
		v = append(v, n)
	}
	return v, nil
}

// MustParseVersion is for constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or +1. Fields compare numerically left to right; when
// one version is a prefix of the other the shorter one is lower, so
// 3.0 < 3.0.0.
func (v Version) Compare(o Version) int {
	for i := 0; i < len(v) && i < len(o); i++ {
		switch {
		case v[i] < o[i]:
			return -1
		case v[i] > o[i]:
			return 1
		}
	}
	switch {
	case len(v) < len(o):
		return -1
	case len(v) > len(o):
		return 1
	}
	return 0
}

func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
