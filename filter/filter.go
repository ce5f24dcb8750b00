// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package filter defines the predicate trees produced by urlair along with
// the operator tags used inside them and the per-field usage map built up
// during parsing.
//
// A tree is made of exactly two node shapes. A Comparison holds the fields it
// directly constrains, mapping each field either to a bare literal (implicit
// equality) or to a small map of operator tag to literal. A Logical node holds
// an ordered list of child nodes combined with AND or OR. Downstream adapters
// can therefore match exhaustively on the two shapes.
package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Op is an operator tag. The tags mirror the document-store spellings that
// the trees are rendered with, so a Comparison marshals directly into a
// filter document.
type Op string

const (
	OpEq     Op = "$eq"
	OpNe     Op = "$ne"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpRegex  Op = "$regex"
	OpIn     Op = "$in"
	OpNin    Op = "$nin"
	OpExists Op = "$exists"

	// OpSort and OpProject only ever appear in a Usage map. They record
	// fields named by the $sort and $fields control directives and are never
	// stored in a tree.
	OpSort    Op = "sort"
	OpProject Op = "project"
)

// Node is a single node of a predicate tree. It is implemented only by
// Comparison and *Logical.
type Node interface {
	// String returns the node's representation for debugging purposes.
	String() string
	node()
}

// Comparison maps field names to their constraints. A constraint is either a
// bare literal, meaning equality, or a map[Op]any holding one value per
// operator tag. Values in the list forms (OpIn, OpNin) are []any.
type Comparison map[string]any

func (Comparison) node() {}

// Kind selects the connective of a Logical node.
type Kind int

const (
	And Kind = iota
	Or
)

// Logical combines an ordered list of child nodes with a single connective.
// A Logical node always holds at least one child.
type Logical struct {
	Kind  Kind
	Nodes []Node
}

func (*Logical) node() {}

// Regex is a regular expression literal. It is stored as an opaque leaf
// value; urlair never compiles or interprets the pattern.
type Regex struct {
	Pattern string
	Flags   string
}

func (r Regex) String() string {
	return "/" + r.Pattern + "/" + r.Flags
}

// MarshalJSON renders the regex in its document-store operator form.
func (r Regex) MarshalJSON() ([]byte, error) {
	m := map[string]string{"$regex": r.Pattern}
	if r.Flags != "" {
		m["$options"] = r.Flags
	}
	return json.Marshal(m)
}

// String returns a deterministic rendering of the comparison with fields and
// operator tags in sorted order.
func (c Comparison) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, f := range c.sortedFields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f)
		sb.WriteString(": ")
		sb.WriteString(renderConstraint(c[f]))
	}
	sb.WriteString("}")
	return sb.String()
}

func (c Comparison) sortedFields() []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// MarshalJSON renders the comparison as a plain JSON object.
func (c Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(c))
}

func (l *Logical) String() string {
	var sb strings.Builder
	if l.Kind == And {
		sb.WriteString("and[")
	} else {
		sb.WriteString("or[")
	}
	for i, n := range l.Nodes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(n.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// MarshalJSON renders the node as a {"$and": [...]} or {"$or": [...]}
// document.
func (l *Logical) MarshalJSON() ([]byte, error) {
	key := "$and"
	if l.Kind == Or {
		key = "$or"
	}
	return json.Marshal(map[string][]Node{key: l.Nodes})
}

func renderConstraint(v any) string {
	if ops, ok := v.(map[Op]any); ok {
		tags := make([]string, 0, len(ops))
		for t := range ops {
			tags = append(tags, string(t))
		}
		sort.Strings(tags)
		var sb strings.Builder
		sb.WriteString("{")
		for i, t := range tags {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(t)
			sb.WriteString(": ")
			sb.WriteString(RenderLiteral(ops[Op(t)]))
		}
		sb.WriteString("}")
		return sb.String()
	}
	return RenderLiteral(v)
}

// RenderLiteral returns a readable rendering of a literal leaf value. Strings
// are quoted so that the string "25" and the number 25 render differently.
func RenderLiteral(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case Regex:
		return v.String()
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = RenderLiteral(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Usage records which operator tags were used with which fields during a
// single parse. It is append-only: entries are added as constraints are
// recognised and never removed. The tag list per field is de-duplicated and
// keeps first-use order.
type Usage map[string][]Op

// Record appends op to the set owned by field, creating it on first use.
func (u Usage) Record(field string, op Op) {
	if u.Contains(field, op) {
		return
	}
	u[field] = append(u[field], op)
}

// Contains reports whether op has been recorded against field.
func (u Usage) Contains(field string, op Op) bool {
	for _, o := range u[field] {
		if o == op {
			return true
		}
	}
	return false
}
