package ratelimit

import (
	"strings"
)

// Route identifies one REST call for rate-limit accounting. Method and Path
// describe the request; Major carries the major parameter values (the path
// ids that participate in bucket identity, such as a channel or guild id).
type Route struct {
	Method string
	Path   string
	Major  string
}

// NewRoute builds a Route from a method, a request path and the major
// parameter values for that path.
func NewRoute(method, path string, major ...string) Route {
	return Route{
		Method: method,
		Path:   path,
		Major:  strings.Join(major, ":"),
	}
}

// Key returns the synthetic bucket key used for a route until the server
// reveals its real bucket id. Numeric path segments are replaced with a
// generic placeholder so distinct resource instances under the same template
// share one policy shape; the major parameters keep instances with different
// parent resources apart.
func (r Route) Key() string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')

	for i, seg := range strings.Split(strings.Trim(r.Path, "/"), "/") {
		if i > 0 {
			b.WriteByte('/')
		}
		if isSnowflake(seg) {
			b.WriteString(":id")
		} else {
			b.WriteString(seg)
		}
	}

	if r.Major != "" {
		b.WriteByte(';')
		b.WriteString(r.Major)
	}
	return b.String()
}

// isSnowflake reports whether a path segment is a numeric resource id.
func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
