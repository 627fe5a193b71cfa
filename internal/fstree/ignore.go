package fstree

import (
	"bufio"
	"strings"

	"github.com/gobwas/glob"
)

// rule is one compiled line of an ignore/protect pattern file.
type rule struct {
	negate      bool
	dirOnly     bool // trailing '/': only matches directories
	anchored    bool // leading '/': anchored at the workspace root, not recursive
	anchoredPat glob.Glob
	anywherePat glob.Glob // compiled from "{pat,**/pat}" for non-anchored rules
}

// Set is a compiled list of ignore (or protect) rules, evaluated in
// declaration order so a later "!pattern" can override an earlier match.
// The same engine backs both the ignore list (pruning the walk) and the
// protect list (vetoing deletions).
type Set struct {
	rules []rule
}

// ParseRules compiles the small gitignore-like grammar spec.md §4.3
// describes: blank and '#' lines are skipped; a trailing '/' restricts a
// rule to directories; a leading '/' anchors the rule at the workspace
// root (non-recursively); a leading '!' negates a prior match; anything
// else matches anywhere in the tree via the compound glob {pat,**/pat}.
func ParseRules(patterns []string) (*Set, error) {
	s := &Set{}
	for _, raw := range patterns {
		line := strings.TrimRight(raw, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r := rule{}
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			r.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		if line == "" {
			continue
		}

		if r.anchored {
			g, err := glob.Compile(line, '/')
			if err != nil {
				return nil, err
			}
			r.anchoredPat = g
		} else {
			g, err := glob.Compile("{"+line+",**/"+line+"}", '/')
			if err != nil {
				return nil, err
			}
			r.anywherePat = g
		}
		s.rules = append(s.rules, r)
	}
	return s, nil
}

// ParseRulesFile compiles a newline-delimited rules document (the format a
// ".janusignore"-style file, or the config collaborator's ignore/protect
// list, would supply).
func ParseRulesFile(text string) (*Set, error) {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return ParseRules(lines)
}

// Match reports whether relPath (workspace-root-relative, '/'-separated)
// matches this rule set, consulting isDir to honour directory-only rules.
// Rules are evaluated in order; the last matching rule's negate bit wins,
// matching git's "later overrides earlier" semantics.
func (s *Set) Match(relPath string, isDir bool) bool {
	if s == nil {
		return false
	}
	matched := false
	for _, r := range s.rules {
		if r.dirOnly && !isDir {
			continue
		}
		var hit bool
		if r.anchored {
			hit = r.anchoredPat.Match(relPath)
		} else {
			hit = r.anywherePat.Match(relPath)
		}
		if hit {
			matched = !r.negate
		}
	}
	return matched
}

// Empty reports whether the set has no rules at all, letting callers skip
// match work entirely on the common case of an unconfigured workspace.
func (s *Set) Empty() bool { return s == nil || len(s.rules) == 0 }
