package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pattern matches submesh names. "/expr/flags" is a regular expression
// (only the i flag is understood); anything else must match exactly.
type Pattern struct {
	raw   string
	re    *regexp.Regexp
	exact string
}

// ParsePattern compiles s.
func ParsePattern(s string) (Pattern, error) {
	if len(s) >= 2 && s[0] == '/' {
		end := strings.LastIndexByte(s, '/')
		if end > 0 {
			expr, flags := s[1:end], s[end+1:]
			prefix := ""
			for _, f := range flags {
				switch f {
				case 'i':
					prefix = "(?i)"
				default:
					return Pattern{}, fmt.Errorf("catalog: pattern %q: unsupported flag %q", s, f)
				}
			}
			re, err := regexp.Compile(prefix + expr)
			if err != nil {
				return Pattern{}, fmt.Errorf("catalog: pattern %q: %w", s, err)
			}
			return Pattern{raw: s, re: re}, nil
		}
	}
	return Pattern{raw: s, exact: s}, nil
}

// MustPattern is ParsePattern for literals known to be valid.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether name satisfies the pattern.
func (p Pattern) Match(name string) bool {
	if p.re != nil {
		return p.re.MatchString(name)
	}
	return p.exact != "" && name == p.exact
}

func (p Pattern) String() string { return p.raw }

func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParsePattern(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Pattern) MarshalYAML() (interface{}, error) { return p.raw, nil }

// AnyMatch reports whether any pattern in list matches name.
func AnyMatch(list []Pattern, name string) bool {
	for _, p := range list {
		if p.Match(name) {
			return true
		}
	}
	return false
}

func mustPatterns(ss ...string) []Pattern {
	out := make([]Pattern, len(ss))
	for i, s := range ss {
		out[i] = MustPattern(s)
	}
	return out
}
