package upstream

import (
	"net/url"
	"strconv"
	"strings"
)

// Query is an ordered list of query parameters. Parameters appear in the
// order they were added; absent values are never written, not even as "key=".
type Query struct {
	keys   []string
	values []string
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{}
}

// String adds key=value when value is non-empty.
func (q *Query) String(key, value string) *Query {
	if value != "" {
		q.keys = append(q.keys, key)
		q.values = append(q.values, value)
	}
	return q
}

// Int adds key=value when value is non-zero. Zero counts as "not provided",
// so page=0 is omitted.
func (q *Query) Int(key string, value int) *Query {
	if value != 0 {
		q.keys = append(q.keys, key)
		q.values = append(q.values, strconv.Itoa(value))
	}
	return q
}

// Len returns the number of parameters present.
func (q *Query) Len() int {
	if q == nil {
		return 0
	}
	return len(q.keys)
}

// Encode renders the query in insertion order, escaping each key and value.
func (q *Query) Encode() string {
	if q.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.values[i]))
	}
	return b.String()
}

// Endpoint joins a path and query. The "?" is only added when the query has
// at least one parameter.
func Endpoint(path string, q *Query) string {
	if q.Len() == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// Segment escapes a caller-supplied identifier for use as one path segment.
func Segment(id string) string {
	return url.PathEscape(id)
}
