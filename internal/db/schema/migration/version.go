// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package migration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gridguyz/patcher/internal/errors"
)

// VersionPattern is the grammar accepted for migration versions, without
// anchors so it can be embedded in file name patterns.
const VersionPattern = `\d+(?:\.(?:(?:dev|a|b|rc)\d*|\d+))*`

var versionRe = regexp.MustCompile(`^` + VersionPattern + `$`)

// segment ranks, ordered from lowest to highest. A segment that is missing
// on one side of a comparison ranks above every pre-release tag and below
// any numeric segment.
const (
	rankDev = iota
	rankAlpha
	rankBeta
	rankRC
	rankMissing
	rankNumeric
)

var tagRanks = map[string]int{
	"dev": rankDev,
	"a":   rankAlpha,
	"b":   rankBeta,
	"rc":  rankRC,
}

type segment struct {
	rank int
	// num is the numeric value of the segment, or of the number trailing a
	// pre-release tag.
	num uint64
	// hasNum is false for a bare tag such as "rc", which sorts before "rc0".
	hasNum bool
}

// Version is a migration version such as "1.2", "2.0.rc1" or "3.0.dev".
// The zero value is the unmigrated version "0".
type Version struct {
	raw  string
	segs []segment
}

// ZeroVersion is the version of a section that has never been migrated.
var ZeroVersion = Version{}

// ParseVersion parses s according to VersionPattern. The empty string parses
// to the zero version.
func ParseVersion(s string) (Version, error) {
	const op = "migration.ParseVersion"
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroVersion, nil
	}
	if !versionRe.MatchString(s) {
		return Version{}, errors.New(errors.InvalidVersion, op, fmt.Sprintf("%q does not match %s", s, VersionPattern))
	}
	parts := strings.Split(s, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		seg, err := parseSegment(p)
		if err != nil {
			return Version{}, errors.Wrap(err, op, errors.WithCode(errors.InvalidVersion), errors.WithMsg(fmt.Sprintf("version %q", s)))
		}
		segs = append(segs, seg)
	}
	return Version{raw: s, segs: segs}, nil
}

// MustParseVersion is like ParseVersion but panics on invalid input.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseSegment(p string) (segment, error) {
	for tag, rank := range tagRanks {
		if !strings.HasPrefix(p, tag) {
			continue
		}
		rest := p[len(tag):]
		if rest == "" {
			return segment{rank: rank}, nil
		}
		if strings.Trim(rest, "0123456789") != "" {
			continue
		}
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return segment{}, err
		}
		return segment{rank: rank, num: n, hasNum: true}, nil
	}
	n, err := strconv.ParseUint(p, 10, 64)
	if err != nil {
		return segment{}, err
	}
	return segment{rank: rankNumeric, num: n, hasNum: true}, nil
}

// String returns the version as it was written. The zero version is "0".
func (v Version) String() string {
	if v.raw == "" {
		return "0"
	}
	return v.raw
}

// IsZero reports whether v denotes the unmigrated version.
func (v Version) IsZero() bool {
	return v.Compare(ZeroVersion) == 0
}

// Equal reports whether v and o compare as the same version.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// Compare returns -1, 0 or 1 as v is less than, equal to or greater than o.
// Segments are compared left to right; numeric segments outrank a missing
// segment, which outranks rc, b, a and dev in that order.
func (v Version) Compare(o Version) int {
	a, b := v.segments(), o.segments()
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	missing := segment{rank: rankMissing}
	for i := 0; i < n; i++ {
		x, y := missing, missing
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func (v Version) segments() []segment {
	if len(v.segs) == 0 {
		return []segment{{rank: rankNumeric, hasNum: true}}
	}
	return v.segs
}

func compareSegment(x, y segment) int {
	switch {
	case x.rank < y.rank:
		return -1
	case x.rank > y.rank:
		return 1
	case x.hasNum != y.hasNum:
		if x.hasNum {
			return 1
		}
		return -1
	case x.num < y.num:
		return -1
	case x.num > y.num:
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
