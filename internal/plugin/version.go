package plugin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// Version is a semantic version with an optional build tag. The build tag
// is informational and does not participate in ordering.
type Version struct {
	Major int
	Minor int
	Patch int
	Build string
}

// ParseVersion parses "M.m.p" or "M.m.p-build".
func ParseVersion(s string) (Version, error) {
	var v Version

	core := s
	if idx := strings.IndexByte(s, '-'); idx != -1 {
		core = s[:idx]
		v.Build = s[idx+1:]
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, errdefs.InvalidArgumentf("version %q: want M.m.p[-build]", s)
	}
	fields := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, errdefs.InvalidArgumentf("version %q: bad field %q", s, p)
		}
		*fields[i] = n
	}
	return v, nil
}

// Compare returns -1, 0, or 1 comparing v to other field-wise, major
// field first. Build tags are ignored.
func (v Version) Compare(other Version) int {
	pairs := [][2]int{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	}
	for _, p := range pairs {
		switch {
		case p[0] < p[1]:
			return -1
		case p[0] > p[1]:
			return 1
		}
	}
	return 0
}

// String formats the version as "M.m.p" or "M.m.p-build".
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Build != "" {
		s += "-" + v.Build
	}
	return s
}
