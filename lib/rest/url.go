package rest

import (
	"net/url"

	"github.com/pkg/errors"
)

// URLJoin joins a URL and a path returning a new URL
//
// path should be URL escaped
func URLJoin(base *url.URL, path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Error parsing %q as URL", path)
	}
	return base.ResolveReference(rel), nil
}

// URLPathEscape escapes a single path segment, e.g. a user name or a
// folder id
func URLPathEscape(in string) string {
	return url.PathEscape(in)
}
