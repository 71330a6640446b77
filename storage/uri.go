package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnectionURI is a parsed backend connection string of the form
// scheme://path[?key=value[&key=value...]]. The scheme selects the backend
// through the Registry; path and params are backend-specific configuration.
type ConnectionURI struct {
	Scheme string
	Path   string
	Params url.Values
}

// ParseURI parses a connection string. The scheme is mandatory.
func ParseURI(raw string) (ConnectionURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ConnectionURI{}, fmt.Errorf("%w: parse uri %q: %v", ErrInvalidArgument, raw, err)
	}
	if u.Scheme == "" {
		return ConnectionURI{}, fmt.Errorf("%w: uri %q has no scheme", ErrInvalidArgument, raw)
	}

	// "local:///var/data" parses with an empty host; "local://var/data"
	// puts the first segment into the host. Join them back so the path is
	// whatever followed "scheme://".
	path := u.Path
	if u.Host != "" {
		path = u.Host + path
	}
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return ConnectionURI{}, fmt.Errorf("%w: uri %q has no path", ErrInvalidArgument, raw)
	}

	return ConnectionURI{Scheme: u.Scheme, Path: path, Params: u.Query()}, nil
}

// String re-renders the URI in scheme://path[?params] form.
func (u ConnectionURI) String() string {
	s := u.Scheme + "://" + u.Path
	if len(u.Params) > 0 {
		s += "?" + u.Params.Encode()
	}
	return s
}

// Param returns the named query parameter or def when absent.
func (u ConnectionURI) Param(key, def string) string {
	if u.Params == nil {
		return def
	}
	if v := u.Params.Get(key); v != "" {
		return v
	}
	return def
}
