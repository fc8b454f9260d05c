package api

import (
	"context"
	"path"
	"strings"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

func notFoundPath(input string) error {
	return amperrors.NotFound("file_log", input)
}

// PathResolution is the outcome of resolveFilePath: either a single
// stored file (Record non-nil, Status "resolved") or, when a basename
// search turns up more than one candidate, a successful-but-ambiguous
// result the caller re-prompts on rather than treats as an error.
type PathResolution struct {
	Status        string        `json:"status"`
	Record        *store.Record `json:"-"`
	MatchingFiles []string      `json:"matching_files,omitempty"`
	Hint          string        `json:"hint,omitempty"`
}

// resolveFilePath accepts a relative, project-relative, or absolute
// (POSIX or Windows, including an extended-length \\?\ prefix) file
// path and tries, in order: an exact match against the stored path, a
// substring (contains) match, a normalized-separator match, and
// finally a basename match. A basename match against more than one
// stored file is reported as ambiguous rather than picked arbitrarily.
func resolveFilePath(ctx context.Context, st store.ObjectStore, tenantID, projectID, input string) (*PathResolution, error) {
	records, err := st.List(ctx, store.Filter{Type: objects.TypeFileLog, ProjectID: projectID, TenantID: tenantID}, 0)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		rec  *store.Record
		path string
	}
	all := make([]candidate, 0, len(records))
	for _, rec := range records {
		fl, ok := rec.Variant.(*objects.FileLog)
		if !ok {
			continue
		}
		all = append(all, candidate{rec: rec, path: fl.FilePath})
	}

	normInput := normalizePath(input)

	// exact match
	for _, c := range all {
		if c.path == input {
			return &PathResolution{Status: "resolved", Record: c.rec}, nil
		}
	}

	// contains match
	var containsMatches []candidate
	for _, c := range all {
		if strings.Contains(c.path, input) {
			containsMatches = append(containsMatches, c)
		}
	}
	if len(containsMatches) == 1 {
		return &PathResolution{Status: "resolved", Record: containsMatches[0].rec}, nil
	}

	// normalized match
	var normMatches []candidate
	for _, c := range all {
		if normalizePath(c.path) == normInput {
			normMatches = append(normMatches, c)
		}
	}
	if len(normMatches) == 1 {
		return &PathResolution{Status: "resolved", Record: normMatches[0].rec}, nil
	}

	// basename match
	base := path.Base(normInput)
	var baseMatches []candidate
	for _, c := range all {
		if path.Base(normalizePath(c.path)) == base {
			baseMatches = append(baseMatches, c)
		}
	}
	if len(baseMatches) == 1 {
		return &PathResolution{Status: "resolved", Record: baseMatches[0].rec}, nil
	}
	if len(baseMatches) > 1 {
		paths := make([]string, len(baseMatches))
		for i, c := range baseMatches {
			paths[i] = c.path
		}
		return &PathResolution{
			Status:        "ambiguous",
			MatchingFiles: paths,
			Hint:          "multiple indexed files share the basename " + base + "; pass a longer, more specific path",
		}, nil
	}

	if len(containsMatches) > 1 {
		paths := make([]string, len(containsMatches))
		for i, c := range containsMatches {
			paths[i] = c.path
		}
		return &PathResolution{
			Status:        "ambiguous",
			MatchingFiles: paths,
			Hint:          "multiple indexed files contain " + input + "; pass a longer, more specific path",
		}, nil
	}

	return nil, notFoundPath(input)
}

// normalizePath strips a Windows extended-length prefix, normalizes
// separators to "/", and trims any leading "./" or "/" so that
// relative, project-relative, and absolute spellings of the same file
// compare equal.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, `\\?\`)
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	for strings.HasPrefix(p, "/") {
		p = p[1:]
	}
	return p
}
