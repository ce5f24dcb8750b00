// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package urlair

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/canonical/urlair/filter"
	"github.com/canonical/urlair/internal/parse"
)

// Query is the parsed form of a raw query string: the predicate tree built
// from the filter segments, the control directives, and the record of which
// fields were used with which operators.
type Query struct {
	// Filter is the root of the predicate tree, or nil when the query
	// carried no filter segments.
	Filter filter.Node
	// Controls holds the $-prefixed control directives.
	Controls Controls
	// Usage maps each field named anywhere in the query to the operator
	// tags used with it, including the synthetic sort and project tags.
	Usage filter.Usage
}

// Controls maps control directive names, without their $ sigil, to their raw
// values. Directives urlair does not recognise are kept verbatim; the typed
// accessors only interpret the well-known ones.
type Controls map[string]string

// SortField is one field of a $sort directive.
type SortField struct {
	Field      string
	Descending bool
}

// Limit returns the parsed $limit directive. ok is false when the directive
// is absent.
func (c Controls) Limit() (n int64, ok bool, err error) {
	return c.integer("limit")
}

// Skip returns the parsed $skip directive. ok is false when the directive is
// absent.
func (c Controls) Skip() (n int64, ok bool, err error) {
	return c.integer("skip")
}

func (c Controls) integer(name string) (int64, bool, error) {
	raw, ok := c[name]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("cannot parse $%s directive: invalid integer %q", name, raw)
	}
	if n < 0 {
		return 0, true, fmt.Errorf("cannot parse $%s directive: negative value %q", name, raw)
	}
	return n, true, nil
}

// Sort returns the fields of the $sort directive in order. A leading minus
// on a field marks it descending.
func (c Controls) Sort() []SortField {
	raw, ok := c["sort"]
	if !ok {
		return nil
	}
	var fields []SortField
	for _, f := range splitList(raw) {
		if rest := strings.TrimPrefix(f, "-"); rest != f {
			fields = append(fields, SortField{Field: rest, Descending: true})
		} else {
			fields = append(fields, SortField{Field: f})
		}
	}
	return fields
}

// Projection returns the fields of the $fields directive.
func (c Controls) Projection() []string {
	raw, ok := c["fields"]
	if !ok {
		return nil
	}
	return splitList(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Parse takes a raw query string, splits it into segments, percent-decodes
// them, separates control directives from filter expression text and parses
// the filter into a predicate tree. A leading '?' is tolerated. Fields named
// by $sort and $fields are recorded in the usage map under the sort and
// project tags alongside the fields recorded by the filter itself.
func Parse(rawQuery string) (*Query, error) {
	rawQuery = strings.TrimPrefix(rawQuery, "?")

	controls := Controls{}
	var filterSegments []string
	for _, raw := range strings.Split(rawQuery, "&") {
		if raw == "" {
			continue
		}
		segment, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot decode query segment %q: %s", raw, err)
		}
		if name, value, ok := controlDirective(segment); ok {
			controls[name] = value
			continue
		}
		filterSegments = append(filterSegments, segment)
	}

	q := &Query{Controls: controls, Usage: filter.Usage{}}

	if len(filterSegments) > 0 {
		node, err := parse.Parse(strings.Join(filterSegments, "&"), q.Usage)
		if err != nil {
			return nil, fmt.Errorf("cannot parse filter expression: %w", err)
		}
		q.Filter = node
	}

	for _, s := range q.Controls.Sort() {
		q.Usage.Record(s.Field, filter.OpSort)
	}
	for _, f := range q.Controls.Projection() {
		q.Usage.Record(f, filter.OpProject)
	}
	return q, nil
}

// ParseFilter parses already-decoded filter expression text, with no control
// directive handling, and returns the predicate tree along with the usage
// map populated during the parse.
func ParseFilter(text string) (filter.Node, filter.Usage, error) {
	usage := filter.Usage{}
	node, err := parse.Parse(text, usage)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot parse filter expression: %w", err)
	}
	return node, usage, nil
}

// controlDirective reports whether a decoded segment is a control directive
// and splits it into name and value. The existence keywords look like
// directives but belong to the filter grammar, so they are excluded here and
// handed to the parser with the rest of the filter text.
func controlDirective(segment string) (name, value string, ok bool) {
	if !strings.HasPrefix(segment, "$") {
		return "", "", false
	}
	name, value, _ = strings.Cut(segment[1:], "=")
	if name == "exists" || name == "!exists" {
		return "", "", false
	}
	if name == "" {
		return "", "", false
	}
	return name, value, true
}
