package handler

import "regexp"

// videoIDPattern is the allowlist every handler touching the filesystem by
// video ID enforces before it ever reaches the store, per the path-traversal
// defense: a permissive allowlist checked ahead of any filesystem join.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

func validVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}
