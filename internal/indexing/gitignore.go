package indexing

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ignoreRule is one compiled gitignore pattern.
type ignoreRule struct {
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
}

// IgnoreMatcher applies gitignore-style patterns, loaded either from an
// explicit pattern set or from a root's .gitignore file (§4.4 Input:
// "optionally .gitignore").
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher compiles patterns in order; later patterns (including
// negations, "!pattern") override earlier ones for the same path, as
// git itself resolves them.
func NewIgnoreMatcher(patterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, p := range patterns {
		m.add(p)
	}
	return m
}

// LoadGitignore augments m with the patterns in the root's .gitignore
// file, if present. A missing file is not an error.
func (m *IgnoreMatcher) LoadGitignore(root string) error {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.add(line)
	}
	return scanner.Err()
}

func (m *IgnoreMatcher) add(pattern string) {
	negation := strings.HasPrefix(pattern, "!")
	if negation {
		pattern = pattern[1:]
	}
	dirOnly := strings.HasSuffix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	re := globToRegexp(pattern)
	compiled, err := regexp.Compile(re)
	if err != nil {
		return
	}
	m.rules = append(m.rules, ignoreRule{regex: compiled, negation: negation, dirOnly: dirOnly})
}

// globToRegexp translates a gitignore glob (*, ?, **) into an anchored
// regexp matching either the full relative path or any path segment.
func globToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^(.*/)?")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		case strings.ContainsRune(`.+()|^$[]{}\`, rune(c)):
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteString("(/.*)?$")
	return b.String()
}

// Match reports whether relPath (slash-separated, relative to the
// watched root) is ignored. isDir distinguishes directory-only rules.
func (m *IgnoreMatcher) Match(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.regex.MatchString(relPath) {
			ignored = !r.negation
		}
	}
	return ignored
}
