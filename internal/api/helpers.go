package api

import "strconv"

// parseIntDefault parses s as an int, falling back to def on an empty
// or malformed value rather than rejecting the request outright.
func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
