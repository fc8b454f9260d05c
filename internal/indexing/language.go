package indexing

import (
	"bytes"
	"path/filepath"
	"strings"
)

// extToLanguage maps recognized file extensions to a language tag. Files
// whose extension is absent here are skipped per §4.4 step 1.
var extToLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".sql":  "sql",
	".sh":   "shell",
	".txt":  "text",
}

// DefaultExcludeDirs always apply, per §4.4's "always includes VCS
// metadata, build artifacts, common dependency caches".
var DefaultExcludeDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "dist", "build", "target",
	"__pycache__", ".venv", "venv", ".tox",
	".amp-cache", ".idea", ".vscode",
}

// LanguageForPath returns the language tag for path's extension, or ""
// if the extension is unrecognized.
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return extToLanguage[ext]
}

// looksBinary applies the common NUL-byte heuristic to the first bytes
// of content, matching §4.4 step 1's "skip unrecognized/binary files".
func looksBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(content[:n], 0) != -1
}
