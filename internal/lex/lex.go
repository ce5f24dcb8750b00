// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package lex turns decoded filter expression text into a flat sequence of
// tokens. Matching is ordered first-match: a fixed priority list of rules is
// tried at the current position and the first rule that matches wins. The
// ordering is part of the language: a leading-zero sequence such as "007"
// must fall through the number rule to the bare word rule so it keeps its
// text form, and multi-character operators must win over their prefixes.
package lex

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Kind identifies the kind of a token.
type Kind int

const (
	// Literal kinds.
	Regex Kind = iota
	String
	SpacedString
	Number
	Bool
	Null

	// Operator kinds.
	NotEqual
	GreaterOrEqual
	LessOrEqual
	Matches
	Equal
	Greater
	Less

	// Structural punctuation.
	Or
	And
	LeftParen
	RightParen
	LeftBrace
	RightBrace
	Comma
	Bang

	// Keyword is a $-prefixed reserved word such as $exists. The negated
	// form $!exists is a single keyword token.
	Keyword

	// Word is a bare field name or unquoted single-word value. Dots are
	// allowed so nested document paths stay one token.
	Word
)

var kindNames = map[Kind]string{
	Regex:          "regex",
	String:         "string",
	SpacedString:   "string",
	Number:         "number",
	Bool:           "bool",
	Null:           "null",
	NotEqual:       "operator",
	GreaterOrEqual: "operator",
	LessOrEqual:    "operator",
	Matches:        "operator",
	Equal:          "operator",
	Greater:        "operator",
	Less:           "operator",
	Or:             "or connector",
	And:            "and connector",
	LeftParen:      "opening parenthesis",
	RightParen:     "closing parenthesis",
	LeftBrace:      "opening brace",
	RightBrace:     "closing brace",
	Comma:          "comma",
	Bang:           "exclamation mark",
	Keyword:        "keyword",
	Word:           "word",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Token is a single lexeme. Text is the exact source substring, so
// re-scanning Text always reproduces the token.
type Token struct {
	Kind   Kind
	Text   string
	Offset int
}

// Error is a lexical error: a position in the input where no token rule
// matches.
type Error struct {
	// Msg describes the failure.
	Msg string
	// Text is the offending character or character sequence.
	Text string
	// Offset is the character offset of Text in the input.
	Offset int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q near char %d", e.Msg, e.Text, e.Offset)
}

type lexer struct {
	input string
	pos   int
	// nextPos is the start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches
	// the end of input.
	char rune
}

// A checkpoint for rewinding the lexer after a rule fails part way in.
type checkpoint struct {
	lexer   *lexer
	pos     int
	nextPos int
	char    rune
}

func (l *lexer) save() checkpoint {
	return checkpoint{lexer: l, pos: l.pos, nextPos: l.nextPos, char: l.char}
}

func (cp checkpoint) restore() {
	cp.lexer.pos = cp.pos
	cp.lexer.nextPos = cp.nextPos
	cp.lexer.char = cp.char
}

// advanceChar moves the lexer to the next character in the input.
func (l *lexer) advanceChar() bool {
	if l.nextPos >= len(l.input) {
		l.char = 0
		l.pos = l.nextPos
		return false
	}
	var size int
	l.char, size = utf8.DecodeRuneInString(l.input[l.nextPos:])
	l.pos = l.nextPos
	l.nextPos += size
	return true
}

// peekChar returns true if the current char equals the one passed as
// parameter.
func (l *lexer) peekChar(c rune) bool {
	return l.pos < len(l.input) && l.char == c
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. Returns true in that case, false otherwise.
func (l *lexer) skipChar(c rune) bool {
	if l.pos < len(l.input) && l.char == c {
		l.advanceChar()
		return true
	}
	return false
}

// skipString jumps over the given string if the input continues with it.
func (l *lexer) skipString(s string) bool {
	if l.pos+len(s) <= len(l.input) && l.input[l.pos:l.pos+len(s)] == s {
		l.pos += len(s)
		var size int
		l.char, size = utf8.DecodeRuneInString(l.input[l.pos:])
		l.nextPos = l.pos + size
		return true
	}
	return false
}

// isNameChar returns true if the given char can be part of a bare word.
// Dots are included so nested field paths lex as one word.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.'
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

// Scan tokenizes the whole input. Whitespace is consumed but never emitted.
func Scan(input string) ([]Token, error) {
	l := &lexer{input: input}
	l.advanceChar()

	var toks []Token
	for l.pos < len(l.input) {
		start := l.pos
		kind, ok, err := l.scanToken()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &Error{Msg: "unexpected character", Text: string(l.char), Offset: l.pos}
		}
		if kind < 0 {
			// Whitespace, discarded.
			continue
		}
		toks = append(toks, Token{Kind: kind, Text: l.input[start:l.pos], Offset: start})
	}
	return toks, nil
}

// scanToken tries each token rule, in priority order, anchored at the current
// position. It returns the kind of the matched token, or -1 when the match
// was whitespace.
func (l *lexer) scanToken() (Kind, bool, error) {
	if ok, err := l.scanRegex(); err != nil {
		return 0, false, err
	} else if ok {
		return Regex, true, nil
	}
	if ok, err := l.scanQuoted(); err != nil {
		return 0, false, err
	} else if ok {
		return String, true, nil
	}
	if l.scanNumber() {
		return Number, true, nil
	}
	if l.scanKeywordWord("true") || l.scanKeywordWord("false") {
		return Bool, true, nil
	}
	if l.scanKeywordWord("null") {
		return Null, true, nil
	}
	if kind, ok := l.scanOperator(); ok {
		return kind, true, nil
	}
	if kind, ok := l.scanPunctuation(); ok {
		return kind, true, nil
	}
	if l.scanReserved() {
		return Keyword, true, nil
	}
	if l.scanSpacedString() {
		return SpacedString, true, nil
	}
	if l.scanWord() {
		return Word, true, nil
	}
	if l.scanWhitespace() {
		return -1, true, nil
	}
	return 0, false, nil
}

// scanRegex matches a /pattern/ literal with optional trailing flag letters.
// A backslash escapes the next character inside the pattern.
func (l *lexer) scanRegex() (bool, error) {
	cp := l.save()
	if !l.skipChar('/') {
		return false, nil
	}
	for l.pos < len(l.input) {
		if l.skipChar('\\') {
			l.advanceChar()
			continue
		}
		if l.skipChar('/') {
			for l.pos < len(l.input) && l.char >= 'a' && l.char <= 'z' {
				l.advanceChar()
			}
			return true, nil
		}
		l.advanceChar()
	}
	err := &Error{Msg: "missing closing slash in regex literal", Text: "/", Offset: cp.pos}
	cp.restore()
	return false, err
}

// scanQuoted matches a single or double quoted string literal. The quotes
// stay part of the token text.
func (l *lexer) scanQuoted() (bool, error) {
	cp := l.save()
	c := l.char
	if !l.skipChar('\'') && !l.skipChar('"') {
		return false, nil
	}
	for l.pos < len(l.input) {
		if l.skipChar(c) {
			return true, nil
		}
		l.advanceChar()
	}
	err := &Error{Msg: "missing closing quote in string literal", Text: string(c), Offset: cp.pos}
	cp.restore()
	return false, err
}

// scanNumber matches integers and decimals, with an optional leading minus.
// A leading zero followed by another digit is not a number; text like "007"
// falls through to the word rule and keeps its string form.
func (l *lexer) scanNumber() bool {
	cp := l.save()
	l.skipChar('-')
	if !isDigit(l.char) {
		cp.restore()
		return false
	}
	if l.char == '0' {
		l.advanceChar()
		if isDigit(l.char) {
			cp.restore()
			return false
		}
	} else {
		for isDigit(l.char) {
			l.advanceChar()
		}
	}
	fracCP := l.save()
	if l.skipChar('.') {
		if !isDigit(l.char) {
			fracCP.restore()
			return true
		}
		for isDigit(l.char) {
			l.advanceChar()
		}
	}
	return true
}

// scanKeywordWord matches a bare word literal such as true or null. The
// following char must not be a name char, so "trueish" stays a single word.
func (l *lexer) scanKeywordWord(s string) bool {
	cp := l.save()
	if !l.skipString(s) {
		return false
	}
	if l.pos < len(l.input) && isNameChar(l.char) {
		cp.restore()
		return false
	}
	return true
}

// scanOperator matches comparison operators. Multi-character operators come
// before any of their single character prefixes.
func (l *lexer) scanOperator() (Kind, bool) {
	switch {
	case l.skipString("!="):
		return NotEqual, true
	case l.skipString(">="):
		return GreaterOrEqual, true
	case l.skipString("<="):
		return LessOrEqual, true
	case l.skipString("=~"):
		return Matches, true
	case l.skipChar('='):
		return Equal, true
	case l.skipChar('>'):
		return Greater, true
	case l.skipChar('<'):
		return Less, true
	}
	return 0, false
}

func (l *lexer) scanPunctuation() (Kind, bool) {
	switch {
	case l.skipChar('^'):
		return Or, true
	case l.skipChar('&'):
		return And, true
	case l.skipChar('('):
		return LeftParen, true
	case l.skipChar(')'):
		return RightParen, true
	case l.skipChar('{'):
		return LeftBrace, true
	case l.skipChar('}'):
		return RightBrace, true
	case l.skipChar(','):
		return Comma, true
	case l.skipChar('!'):
		return Bang, true
	}
	return 0, false
}

// scanReserved matches a $-prefixed keyword. The name may carry a leading
// negation marker, as in $!exists.
func (l *lexer) scanReserved() bool {
	cp := l.save()
	if !l.skipChar('$') {
		return false
	}
	l.skipChar('!')
	mark := l.pos
	for l.pos < len(l.input) && (unicode.IsLetter(l.char) || unicode.IsDigit(l.char) || l.char == '_') {
		l.advanceChar()
	}
	if l.pos == mark {
		cp.restore()
		return false
	}
	return true
}

// scanSpacedString greedily matches bare text with interior spaces or plus
// signs, so unquoted multi-word values lex as a single literal. At least one
// interior separator is required; plain single words fall through to the
// word rule.
func (l *lexer) scanSpacedString() bool {
	cp := l.save()
	if !l.scanWord() {
		cp.restore()
		return false
	}
	spaced := false
	for {
		sep := l.save()
		n := 0
		for l.skipChar(' ') || l.skipChar('+') {
			n++
		}
		if n == 0 || !l.scanWord() {
			sep.restore()
			break
		}
		spaced = true
	}
	if !spaced {
		cp.restore()
		return false
	}
	return true
}

// scanWord matches a run of letters, digits, underscores and dots.
func (l *lexer) scanWord() bool {
	mark := l.pos
	for l.pos < len(l.input) && isNameChar(l.char) {
		l.advanceChar()
	}
	return l.pos > mark
}

func (l *lexer) scanWhitespace() bool {
	mark := l.pos
	for l.pos < len(l.input) {
		switch l.char {
		case ' ', '\t', '\r', '\n':
			l.advanceChar()
		default:
			return l.pos != mark
		}
	}
	return l.pos != mark
}
