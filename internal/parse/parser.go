// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package parse evaluates tokenized filter expression text into a predicate
// tree. The grammar is, with '&' binding tighter than '^':
//
//	Expression  := Disjunction
//	Disjunction := Conjunction ( '^' Conjunction )*
//	Conjunction := Term ( '&' Term )*
//	Term        := Group | Between | ExistsList | MembershipList | Comparison
//	Group       := '(' Disjunction ')'
//	Between     := Literal ('<'|'<=') Field ('<'|'<=') Literal
//	ExistsList  := ('$exists'|'$!exists') '=' Field (',' Field)*
//	MembershipList := Field ['!'] '{' Literal (',' Literal)* '}'
//	Comparison  := Field Operator Literal
//
// When a conjunction closes its terms are merged: constraints on distinct
// fields, or compatible constraints on one field such as the two bounds of a
// range, collapse into a single comparison, while conflicting constraints on
// the same field stay separate entries of an explicit AND node.
package parse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/canonical/urlair/filter"
	"github.com/canonical/urlair/internal/lex"
)

// SyntaxError is a structural error: the token sequence does not follow the
// grammar. It carries the offending token text and its character offset in
// the input.
type SyntaxError struct {
	Msg    string
	Text   string
	Offset int
}

func (e *SyntaxError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s near char %d", e.Msg, e.Offset)
	}
	return fmt.Sprintf("%s %q near char %d", e.Msg, e.Text, e.Offset)
}

type parser struct {
	input string
	toks  []lex.Token
	// pos is the cursor into toks.
	pos   int
	usage filter.Usage
}

// Parse evaluates decoded filter expression text into a predicate tree,
// recording every recognised field and operator pair into usage. The whole
// parse fails atomically: on error no tree is returned and usage must be
// considered invalid.
func Parse(input string, usage filter.Usage) (filter.Node, error) {
	toks, err := lex.Scan(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, toks: toks, usage: usage}
	node, err := p.parseDisjunction()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.cur(); ok {
		return nil, &SyntaxError{Msg: "unexpected token", Text: tok.Text, Offset: tok.Offset}
	}
	return node, nil
}

// cur returns the token under the cursor.
func (p *parser) cur() (lex.Token, bool) {
	if p.pos < len(p.toks) {
		return p.toks[p.pos], true
	}
	return lex.Token{}, false
}

// peek returns the token one past the cursor.
func (p *parser) peek() (lex.Token, bool) {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1], true
	}
	return lex.Token{}, false
}

func (p *parser) advance() {
	p.pos++
}

// skipKind jumps over the current token if it has the given kind.
func (p *parser) skipKind(k lex.Kind) bool {
	if tok, ok := p.cur(); ok && tok.Kind == k {
		p.advance()
		return true
	}
	return false
}

// expect consumes and returns the current token, which must have the given
// kind.
func (p *parser) expect(k lex.Kind, what string) (lex.Token, error) {
	tok, ok := p.cur()
	if !ok {
		return lex.Token{}, p.errEOF("missing " + what)
	}
	if tok.Kind != k {
		return lex.Token{}, &SyntaxError{Msg: "expected " + what + ", got", Text: tok.Text, Offset: tok.Offset}
	}
	p.advance()
	return tok, nil
}

func (p *parser) errEOF(msg string) error {
	return &SyntaxError{Msg: msg + " at end of input", Offset: len(p.input)}
}

func (p *parser) parseDisjunction() (filter.Node, error) {
	node, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	nodes := []filter.Node{node}
	for p.skipKind(lex.Or) {
		node, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &filter.Logical{Kind: filter.Or, Nodes: nodes}, nil
}

func (p *parser) parseConjunction() (filter.Node, error) {
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []filter.Node{term}
	for p.skipKind(lex.And) {
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return mergeConjunction(terms), nil
}

func (p *parser) parseTerm() (filter.Node, error) {
	tok, ok := p.cur()
	if !ok {
		return nil, p.errEOF("missing filter term")
	}

	switch tok.Kind {
	case lex.LeftParen:
		return p.parseGroup()
	case lex.Keyword:
		return p.parseExistsList(tok)
	}

	// A leading literal is only legal as the lower bound of a between
	// clause. The lookahead is two tokens: a literal followed by one of the
	// two less-than operators commits to the between form, anything else
	// falls through to the comparison forms, which reject the literal.
	if isLiteralKind(tok.Kind) {
		if next, ok := p.peek(); ok && (next.Kind == lex.Less || next.Kind == lex.LessOrEqual) {
			return p.parseBetween()
		}
	}

	field, err := p.expect(lex.Word, "field name")
	if err != nil {
		return nil, err
	}

	// Membership: a field directly followed by '{', or by '!' then '{'.
	if tok, ok := p.cur(); ok && tok.Kind == lex.LeftBrace {
		return p.parseMembershipList(field, false)
	} else if ok && tok.Kind == lex.Bang {
		if next, ok := p.peek(); ok && next.Kind == lex.LeftBrace {
			p.advance()
			return p.parseMembershipList(field, true)
		}
	}

	return p.parseComparison(field)
}

func (p *parser) parseGroup() (filter.Node, error) {
	open, _ := p.cur()
	p.advance()
	node, err := p.parseDisjunction()
	if err != nil {
		return nil, err
	}
	if !p.skipKind(lex.RightParen) {
		if tok, ok := p.cur(); ok {
			return nil, &SyntaxError{Msg: "expected closing parenthesis, got", Text: tok.Text, Offset: tok.Offset}
		}
		return nil, &SyntaxError{Msg: "missing closing parenthesis for group opened", Text: open.Text, Offset: open.Offset}
	}
	return node, nil
}

// parseBetween parses a two-sided range: a literal lower bound, one of the
// two less-than operators, the bounded field, a second less-than operator
// and a literal upper bound. '<' maps to a strict bound and '<=' to an
// inclusive one on either side.
func (p *parser) parseBetween() (filter.Node, error) {
	lowTok, _ := p.cur()
	low, err := p.literalValue(lowTok)
	if err != nil {
		return nil, err
	}
	p.advance()

	lowOp, _ := p.cur()
	p.advance()
	lowTag := filter.OpGt
	if lowOp.Kind == lex.LessOrEqual {
		lowTag = filter.OpGte
	}

	field, err := p.expect(lex.Word, "field name")
	if err != nil {
		return nil, err
	}

	highOp, ok := p.cur()
	if !ok {
		return nil, p.errEOF("missing upper bound operator")
	}
	var highTag filter.Op
	switch highOp.Kind {
	case lex.Less:
		highTag = filter.OpLt
	case lex.LessOrEqual:
		highTag = filter.OpLte
	default:
		return nil, &SyntaxError{Msg: "expected upper bound operator, got", Text: highOp.Text, Offset: highOp.Offset}
	}
	p.advance()

	highTok, ok := p.cur()
	if !ok {
		return nil, p.errEOF("missing upper bound value")
	}
	high, err := p.valueToken(highTok)
	if err != nil {
		return nil, err
	}
	p.advance()

	p.usage.Record(field.Text, lowTag)
	p.usage.Record(field.Text, highTag)
	return filter.Comparison{field.Text: map[filter.Op]any{lowTag: low, highTag: high}}, nil
}

// parseExistsList parses the two reserved keywords for field existence.
func (p *parser) parseExistsList(kw lex.Token) (filter.Node, error) {
	var want bool
	switch kw.Text {
	case "$exists":
		want = true
	case "$!exists":
		want = false
	default:
		return nil, &SyntaxError{Msg: "unknown keyword", Text: kw.Text, Offset: kw.Offset}
	}
	p.advance()

	if _, err := p.expect(lex.Equal, "'=' after "+kw.Text); err != nil {
		return nil, err
	}

	cmp := filter.Comparison{}
	for {
		field, err := p.expect(lex.Word, "field name")
		if err != nil {
			return nil, err
		}
		cmp[field.Text] = map[filter.Op]any{filter.OpExists: want}
		p.usage.Record(field.Text, filter.OpExists)
		if !p.skipKind(lex.Comma) {
			break
		}
	}
	return cmp, nil
}

// parseMembershipList parses a braced literal list. The list needs at least
// one element; a bang before the brace turns inclusion into exclusion.
func (p *parser) parseMembershipList(field lex.Token, negated bool) (filter.Node, error) {
	open, _ := p.cur()
	p.advance()

	var values []any
	for {
		tok, ok := p.cur()
		if !ok {
			return nil, &SyntaxError{Msg: "missing closing brace for list opened", Text: open.Text, Offset: open.Offset}
		}
		v, err := p.valueToken(tok)
		if err != nil {
			return nil, err
		}
		p.advance()
		values = append(values, v)
		if !p.skipKind(lex.Comma) {
			break
		}
	}
	if _, err := p.expect(lex.RightBrace, "closing brace"); err != nil {
		return nil, err
	}

	tag := filter.OpIn
	if negated {
		tag = filter.OpNin
	}
	p.usage.Record(field.Text, tag)
	return filter.Comparison{field.Text: map[filter.Op]any{tag: values}}, nil
}

var operatorTags = map[lex.Kind]filter.Op{
	lex.NotEqual:       filter.OpNe,
	lex.Greater:        filter.OpGt,
	lex.GreaterOrEqual: filter.OpGte,
	lex.Less:           filter.OpLt,
	lex.LessOrEqual:    filter.OpLte,
	lex.Matches:        filter.OpRegex,
}

// parseComparison parses "field operator literal". The equality operator
// stores the bare literal directly under the field, every other operator
// wraps it under its tag.
func (p *parser) parseComparison(field lex.Token) (filter.Node, error) {
	op, ok := p.cur()
	if !ok {
		return nil, p.errEOF("missing operator after field " + strconv.Quote(field.Text))
	}

	if op.Kind == lex.Equal {
		p.advance()
		v, err := p.consumeValue()
		if err != nil {
			return nil, err
		}
		p.usage.Record(field.Text, filter.OpEq)
		return filter.Comparison{field.Text: v}, nil
	}

	tag, ok := operatorTags[op.Kind]
	if !ok {
		return nil, &SyntaxError{Msg: "expected operator, got", Text: op.Text, Offset: op.Offset}
	}
	p.advance()

	v, err := p.consumeValue()
	if err != nil {
		return nil, err
	}
	p.usage.Record(field.Text, tag)
	return filter.Comparison{field.Text: map[filter.Op]any{tag: v}}, nil
}

// consumeValue decodes the token under the cursor as a literal value and
// advances past it.
func (p *parser) consumeValue() (any, error) {
	tok, ok := p.cur()
	if !ok {
		return nil, p.errEOF("missing value after operator")
	}
	v, err := p.valueToken(tok)
	if err != nil {
		return nil, err
	}
	p.advance()
	return v, nil
}

// isLiteralKind reports whether the token kind is one of the literal kinds.
// Bare words are not included: in term position a word is a field name.
func isLiteralKind(k lex.Kind) bool {
	switch k {
	case lex.Regex, lex.String, lex.SpacedString, lex.Number, lex.Bool, lex.Null:
		return true
	}
	return false
}

// valueToken decodes a token in value position into a literal. Bare words
// decode as strings so unquoted values keep working.
func (p *parser) valueToken(tok lex.Token) (any, error) {
	if tok.Kind == lex.Word {
		return tok.Text, nil
	}
	return p.literalValue(tok)
}

// literalValue decodes a literal token into its typed value.
func (p *parser) literalValue(tok lex.Token) (any, error) {
	switch tok.Kind {
	case lex.Number:
		if i, err := strconv.ParseInt(tok.Text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, &SyntaxError{Msg: "invalid number", Text: tok.Text, Offset: tok.Offset}
		}
		return f, nil
	case lex.String:
		// Drop the delimiting quotes.
		return tok.Text[1 : len(tok.Text)-1], nil
	case lex.SpacedString:
		// Interior plus signs are spaces the caller did not decode.
		return strings.ReplaceAll(tok.Text, "+", " "), nil
	case lex.Bool:
		return tok.Text == "true", nil
	case lex.Null:
		return nil, nil
	case lex.Regex:
		end := strings.LastIndexByte(tok.Text, '/')
		return filter.Regex{Pattern: tok.Text[1:end], Flags: tok.Text[end+1:]}, nil
	default:
		return nil, &SyntaxError{Msg: "expected value, got", Text: tok.Text, Offset: tok.Offset}
	}
}

// mergeConjunction folds the sibling terms of one conjunction into as few
// comparison entries as possible. Constraints merge into the current
// accumulator unless they share an operator tag with a field already there;
// a shared tag is a real conflict, so the accumulator is flushed and a fresh
// one started, keeping both constraints instead of overwriting either. Nodes
// that are already logical are passed through untouched.
func mergeConjunction(terms []filter.Node) filter.Node {
	var out []filter.Node
	acc := filter.Comparison{}
	flush := func() {
		if len(acc) > 0 {
			out = append(out, acc)
			acc = filter.Comparison{}
		}
	}

	for _, term := range terms {
		cmp, ok := term.(filter.Comparison)
		if !ok {
			out = append(out, term)
			continue
		}
		fields := make([]string, 0, len(cmp))
		for f := range cmp {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			v := cmp[f]
			held, ok := acc[f]
			if !ok {
				acc[f] = v
				continue
			}
			if tagsIntersect(held, v) {
				flush()
				acc[f] = v
				continue
			}
			acc[f] = unionConstraints(held, v)
		}
	}
	flush()

	if len(out) == 1 {
		return out[0]
	}
	return &filter.Logical{Kind: filter.And, Nodes: out}
}

// constraintTags returns the operator tags set by a constraint value. A bare
// literal counts as an implicit equality.
func constraintTags(v any) []filter.Op {
	if ops, ok := v.(map[filter.Op]any); ok {
		tags := make([]filter.Op, 0, len(ops))
		for t := range ops {
			tags = append(tags, t)
		}
		return tags
	}
	return []filter.Op{filter.OpEq}
}

func tagsIntersect(a, b any) bool {
	bTags := constraintTags(b)
	for _, t := range constraintTags(a) {
		for _, u := range bTags {
			if t == u {
				return true
			}
		}
	}
	return false
}

// unionConstraints rebuilds a field entry holding the operator mappings of
// both constraints. A bare literal is wrapped under an explicit equality tag
// so it can sit next to the other operators.
func unionConstraints(a, b any) map[filter.Op]any {
	merged := map[filter.Op]any{}
	for _, v := range []any{a, b} {
		if ops, ok := v.(map[filter.Op]any); ok {
			for t, val := range ops {
				merged[t] = val
			}
			continue
		}
		merged[filter.OpEq] = v
	}
	return merged
}
