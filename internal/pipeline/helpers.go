package pipeline

import (
	"os"
	"path/filepath"
	"strings"
)

// invalidArtifactName reports whether filename fails the path-traversal
// guard applied to every collected artifact name.
func invalidArtifactName(filename string) bool {
	if filename == "" {
		return true
	}
	return strings.Contains(filename, "..") || strings.HasPrefix(filename, "/")
}

// isPlaylist reports whether filename is an HLS playlist rather than a
// segment or other artifact.
func isPlaylist(filename string) bool {
	return strings.HasSuffix(filename, ".m3u8")
}

// removeVariantSubdir deletes a variant's subdirectory under a video's HLS
// directory, leaving sibling variants untouched.
func removeVariantSubdir(videoDir, label string) {
	if label == "" || strings.Contains(label, "..") || strings.ContainsAny(label, `/\`) {
		return
	}
	os.RemoveAll(filepath.Join(videoDir, label))
}
