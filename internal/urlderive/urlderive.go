// Package urlderive computes the externally reachable URL a remote worker
// must use to fetch an uploaded source file, honoring reverse-proxy headers
// the way a server behind a load balancer expects.
package urlderive

import (
	"errors"
	"net/http"
)

// ErrUndeterminable is returned when neither the forwarded headers nor the
// request itself carry enough information to build a URL.
var ErrUndeterminable = errors.New("could not determine externally reachable URL")

// SourceURL builds the URL a worker should use to GET
// /download_source/<videoID>, preferring X-Forwarded-Proto/X-Forwarded-Host
// over the request's own scheme and host so this works correctly behind a
// reverse proxy. It fails closed: if scheme or host can't be determined,
// it returns ErrUndeterminable rather than guessing localhost.
func SourceURL(r *http.Request, videoID string) (string, error) {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	if scheme == "" || host == "" {
		return "", ErrUndeterminable
	}

	return scheme + "://" + host + "/download_source/" + videoID, nil
}
