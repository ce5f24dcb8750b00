// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqlshim renders predicate trees into parameterised SQL WHERE
// clauses. Field names never reach the SQL text unvalidated: rendering goes
// through a Mapping from filter field names to column names, built either
// from the db tags of a struct or from an explicit map, and unknown fields
// are rejected.
package sqlshim

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/canonical/urlair/filter"
)

// Mapping maps filter field names to SQL column names.
type Mapping map[string]string

var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// ForStruct builds a Mapping from the db tags of a struct. Fields without a
// db tag are left out of the mapping and therefore rejected at render time.
func ForStruct(sample any) (Mapping, error) {
	v := reflect.Indirect(reflect.ValueOf(sample))
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot build column mapping: need struct, got %s", v.Kind())
	}
	m := Mapping{}
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("db")
		if tag == "" {
			continue
		}
		// Options such as omitempty are not meaningful here.
		name, _, _ := strings.Cut(tag, ",")
		if !validColNameRx.MatchString(name) {
			return nil, fmt.Errorf("cannot build column mapping: invalid column name %q in 'db' tag of field %s", name, typ.Field(i).Name)
		}
		m[name] = name
	}
	return m, nil
}

// Where renders a predicate tree into a ?-parameterised WHERE clause with
// the column mapping applied. Regular expression constraints have no
// portable SQL form and are rejected.
func (m Mapping) Where(n filter.Node) (string, []any, error) {
	r := &renderer{mapping: m}
	clause, err := r.node(n)
	if err != nil {
		return "", nil, err
	}
	return clause, r.args, nil
}

// Where renders a predicate tree with an identity column mapping: every
// field maps to the column of the same name, provided the name is a valid
// plain column name.
func Where(n filter.Node) (string, []any, error) {
	return Mapping(nil).Where(n)
}

type renderer struct {
	mapping Mapping
	args    []any
}

func (r *renderer) column(field string) (string, error) {
	if r.mapping != nil {
		col, ok := r.mapping[field]
		if !ok {
			return "", fmt.Errorf("cannot render filter: field %q has no column mapping", field)
		}
		return col, nil
	}
	if !validColNameRx.MatchString(strings.ReplaceAll(field, ".", "_")) {
		return "", fmt.Errorf("cannot render filter: invalid column name %q", field)
	}
	return field, nil
}

func (r *renderer) node(n filter.Node) (string, error) {
	switch n := n.(type) {
	case filter.Comparison:
		return r.comparison(n)
	case *filter.Logical:
		connective := " AND "
		if n.Kind == filter.Or {
			connective = " OR "
		}
		parts := make([]string, len(n.Nodes))
		for i, child := range n.Nodes {
			clause, err := r.node(child)
			if err != nil {
				return "", err
			}
			parts[i] = "(" + clause + ")"
		}
		return strings.Join(parts, connective), nil
	default:
		return "", fmt.Errorf("cannot render filter: unknown node type %T", n)
	}
}

func (r *renderer) comparison(c filter.Comparison) (string, error) {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var parts []string
	for _, f := range fields {
		col, err := r.column(f)
		if err != nil {
			return "", err
		}
		ops, ok := c[f].(map[filter.Op]any)
		if !ok {
			clause, err := r.operator(col, f, filter.OpEq, c[f])
			if err != nil {
				return "", err
			}
			parts = append(parts, clause)
			continue
		}
		tags := make([]string, 0, len(ops))
		for t := range ops {
			tags = append(tags, string(t))
		}
		sort.Strings(tags)
		for _, t := range tags {
			clause, err := r.operator(col, f, filter.Op(t), ops[filter.Op(t)])
			if err != nil {
				return "", err
			}
			parts = append(parts, clause)
		}
	}
	return strings.Join(parts, " AND "), nil
}

var sqlOperators = map[filter.Op]string{
	filter.OpEq:  "=",
	filter.OpNe:  "<>",
	filter.OpGt:  ">",
	filter.OpGte: ">=",
	filter.OpLt:  "<",
	filter.OpLte: "<=",
}

func (r *renderer) operator(col, field string, tag filter.Op, v any) (string, error) {
	switch tag {
	case filter.OpEq, filter.OpNe:
		// NULL comparisons need the IS forms.
		if v == nil {
			if tag == filter.OpEq {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
	case filter.OpIn, filter.OpNin:
		values, ok := v.([]any)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("cannot render filter: field %q has an empty membership list", field)
		}
		marks := make([]string, len(values))
		for i, value := range values {
			if _, ok := value.(filter.Regex); ok {
				return "", fmt.Errorf("cannot render filter: field %q has a regex constraint, not expressible in SQL", field)
			}
			marks[i] = "?"
			r.args = append(r.args, value)
		}
		form := col + " IN (" + strings.Join(marks, ", ") + ")"
		if tag == filter.OpNin {
			form = col + " NOT IN (" + strings.Join(marks, ", ") + ")"
		}
		return form, nil
	case filter.OpExists:
		if v == true {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	case filter.OpRegex:
		return "", fmt.Errorf("cannot render filter: field %q has a regex constraint, not expressible in SQL", field)
	}

	sqlOp, ok := sqlOperators[tag]
	if !ok {
		return "", fmt.Errorf("cannot render filter: field %q has unknown operator tag %q", field, tag)
	}
	if _, ok := v.(filter.Regex); ok {
		return "", fmt.Errorf("cannot render filter: field %q has a regex constraint, not expressible in SQL", field)
	}
	r.args = append(r.args, v)
	return col + " " + sqlOp + " ?", nil
}
