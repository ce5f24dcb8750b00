// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package mongoshim renders predicate trees into bson filter documents for
// the official MongoDB driver. The mapping is mostly mechanical because the
// operator tags already use the document-store spellings; this package takes
// care of ordering, regex literals and the logical connectives.
package mongoshim

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/canonical/urlair/filter"
)

// Document renders a predicate tree into a bson.D ready to be passed as the
// filter argument of a find or aggregate call. Fields and operator tags come
// out in sorted order so the document is deterministic.
func Document(n filter.Node) (bson.D, error) {
	switch n := n.(type) {
	case filter.Comparison:
		return comparison(n)
	case *filter.Logical:
		key := "$and"
		if n.Kind == filter.Or {
			key = "$or"
		}
		children := make(bson.A, len(n.Nodes))
		for i, child := range n.Nodes {
			doc, err := Document(child)
			if err != nil {
				return nil, err
			}
			children[i] = doc
		}
		return bson.D{{Key: key, Value: children}}, nil
	default:
		return nil, fmt.Errorf("cannot render filter: unknown node type %T", n)
	}
}

func comparison(c filter.Comparison) (bson.D, error) {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	doc := bson.D{}
	for _, f := range fields {
		ops, ok := c[f].(map[filter.Op]any)
		if !ok {
			doc = append(doc, bson.E{Key: f, Value: value(c[f])})
			continue
		}
		tags := make([]string, 0, len(ops))
		for t := range ops {
			tags = append(tags, string(t))
		}
		sort.Strings(tags)
		constraint := bson.D{}
		for _, t := range tags {
			v := ops[filter.Op(t)]
			if filter.Op(t) == filter.OpRegex {
				// $regex takes the pattern directly; flags move to $options.
				if re, ok := v.(filter.Regex); ok {
					constraint = append(constraint, bson.E{Key: "$regex", Value: re.Pattern})
					if re.Flags != "" {
						constraint = append(constraint, bson.E{Key: "$options", Value: re.Flags})
					}
					continue
				}
			}
			constraint = append(constraint, bson.E{Key: t, Value: value(v)})
		}
		doc = append(doc, bson.E{Key: f, Value: constraint})
	}
	return doc, nil
}

func value(v any) any {
	switch v := v.(type) {
	case filter.Regex:
		return primitive.Regex{Pattern: v.Pattern, Options: v.Flags}
	case []any:
		out := make(bson.A, len(v))
		for i, e := range v {
			out[i] = value(e)
		}
		return out
	default:
		return v
	}
}
