package suite

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexFilters decides which pages run. A page runs if it matches any MustMatch pattern (or
// there are none) and no MustNotMatch pattern.
type RegexFilters struct {
	MustMatch    PageIDPatternList
	MustNotMatch PageIDPatternList
}

func (r RegexFilters) Match(id PageID) bool {
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(id, true)) &&
		!r.MustNotMatch.AnyMatch(id, false)
}

func (r RegexFilters) IsDefined() bool {
	return r.MustMatch.IsDefined() || r.MustNotMatch.IsDefined()
}

// PageIDPattern matches a page name one path segment at a time. Segments of the pattern are
// separated by "/" rather than ".", so that "." keeps its meaning inside each regex: the
// pattern "Suite/Page.*" matches "Suite.PageOne".
type PageIDPattern []*regexp.Regexp

func (p PageIDPattern) Match(id PageID, includeParents bool) bool {
	min := len(p)
	if min > len(id) {
		if !includeParents {
			return false
		}
		min = len(id)
	}
	for i := 0; i < min; i++ {
		if !p[i].MatchString(id[i]) {
			return false
		}
	}
	return true
}

func (p PageIDPattern) String() string {
	ss := make([]string, 0, len(p))
	for _, c := range p {
		ss = append(ss, c.String())
	}
	return strings.Join(ss, "/")
}

func ParsePageIDPattern(s string) (PageIDPattern, error) {
	parts := strings.Split(s, "/")
	ret := make(PageIDPattern, 0, len(parts))
	for _, part := range parts {
		rx, err := regexp.Compile(part)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		ret = append(ret, rx)
	}
	return ret, nil
}

type PageIDPatternList []PageIDPattern

func (l PageIDPatternList) String() string {
	ss := make([]string, 0, len(l))
	for _, p := range l {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (l *PageIDPatternList) Set(value string) error {
	p, err := ParsePageIDPattern(value)
	if err != nil {
		return err
	}
	*l = append(*l, p)
	return nil
}

func (l PageIDPatternList) IsDefined() bool {
	return len(l) != 0
}

func (l PageIDPatternList) AnyMatch(id PageID, includeParents bool) bool {
	for _, p := range l {
		if p.Match(id, includeParents) {
			return true
		}
	}
	return false
}
