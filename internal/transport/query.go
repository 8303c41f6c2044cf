package transport

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// APIVersion is sent with every request.
const APIVersion = "2018-09-01"

// QueryParams holds the operation-specific query parameters of a request.
// The zero value is ready to use.
type QueryParams struct {
	values map[string]string
}

// NewQueryParams returns an empty parameter set.
func NewQueryParams() *QueryParams {
	return &QueryParams{values: make(map[string]string)}
}

// Set sets key to value, replacing any previous value.
func (q *QueryParams) Set(key, value string) *QueryParams {
	if q.values == nil {
		q.values = make(map[string]string)
	}
	q.values[key] = value
	return q
}

// SetInt sets an integer parameter.
func (q *QueryParams) SetInt(key string, value int64) *QueryParams {
	return q.Set(key, strconv.FormatInt(value, 10))
}

// SetBool sets a boolean parameter.
func (q *QueryParams) SetBool(key string, value bool) *QueryParams {
	return q.Set(key, strconv.FormatBool(value))
}

// SetIfNotEmpty sets key only when value is non-empty.
func (q *QueryParams) SetIfNotEmpty(key, value string) *QueryParams {
	if value != "" {
		q.Set(key, value)
	}
	return q
}

// Get returns the value of key.
func (q *QueryParams) Get(key string) (string, bool) {
	if q == nil || q.values == nil {
		return "", false
	}
	v, ok := q.values[key]
	return v, ok
}

// Encode serializes the query string for one request: the operation name
// first, the parameters in key order, the api version last.
func (q *QueryParams) Encode(opName string) string {
	var b strings.Builder
	b.WriteString("op=")
	b.WriteString(url.QueryEscape(opName))

	if q != nil {
		keys := make([]string, 0, len(q.values))
		for k := range q.values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('&')
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(q.values[k]))
		}
	}

	b.WriteString("&api-version=")
	b.WriteString(url.QueryEscape(APIVersion))
	return b.String()
}
