// Package utils provides small helpers shared across layers, with no
// knowledge of polls, votes, or sessions.
package utils

import "strconv"

// AtoiDefault parses s as an int, falling back to def when s is empty or not
// a number. Handlers use it for the page and page_size query parameters,
// where a malformed value degrades to the default instead of failing the
// request.
//
// Example:
//
//	page := utils.AtoiDefault(c.Query("page"), 1)
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
