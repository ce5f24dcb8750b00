package lex

import (
	"testing"

	gc "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func TestLex(t *testing.T) { gc.TestingT(t) }

type LexSuite struct{}

var _ = gc.Suite(&LexSuite{})

var scanTests = []struct {
	summary  string
	input    string
	expected []Token
}{{
	"simple comparison",
	"age>=18",
	[]Token{{Word, "age", 0}, {GreaterOrEqual, ">=", 3}, {Number, "18", 5}},
}, {
	"equality with word value",
	"name=Fred",
	[]Token{{Word, "name", 0}, {Equal, "=", 4}, {Word, "Fred", 5}},
}, {
	"multi-char operators win over prefixes",
	"a<=1 b<2 c!=3 d=~e",
	[]Token{
		{Word, "a", 0}, {LessOrEqual, "<=", 1}, {Number, "1", 3},
		{Word, "b", 5}, {Less, "<", 6}, {Number, "2", 7},
		{Word, "c", 9}, {NotEqual, "!=", 10}, {Number, "3", 12},
		{Word, "d", 14}, {Matches, "=~", 15}, {Word, "e", 17},
	},
}, {
	"leading zero is not a number",
	"code=007",
	[]Token{{Word, "code", 0}, {Equal, "=", 4}, {Word, "007", 5}},
}, {
	"zero and decimals are numbers",
	"a=0 b=0.5 c=-10.25",
	[]Token{
		{Word, "a", 0}, {Equal, "=", 1}, {Number, "0", 2},
		{Word, "b", 4}, {Equal, "=", 5}, {Number, "0.5", 6},
		{Word, "c", 10}, {Equal, "=", 11}, {Number, "-10.25", 12},
	},
}, {
	"boolean and null literals",
	"a=true b=false c=null",
	[]Token{
		{Word, "a", 0}, {Equal, "=", 1}, {Bool, "true", 2},
		{Word, "b", 7}, {Equal, "=", 8}, {Bool, "false", 9},
		{Word, "c", 15}, {Equal, "=", 16}, {Null, "null", 17},
	},
}, {
	"boundary keeps keyword-prefixed words whole",
	"a=trueish b=nullable",
	[]Token{
		{Word, "a", 0}, {Equal, "=", 1}, {Word, "trueish", 2},
		{Word, "b", 10}, {Equal, "=", 11}, {Word, "nullable", 12},
	},
}, {
	"quoted strings keep their delimiters",
	`a='25' b="true"`,
	[]Token{
		{Word, "a", 0}, {Equal, "=", 1}, {String, "'25'", 2},
		{Word, "b", 7}, {Equal, "=", 8}, {String, `"true"`, 9},
	},
}, {
	"regex literal with flags",
	"bio=~/go(pher)?s/im",
	[]Token{{Word, "bio", 0}, {Matches, "=~", 3}, {Regex, "/go(pher)?s/im", 5}},
}, {
	"regex literal with escaped slash",
	`path=/usr\/local/`,
	[]Token{{Word, "path", 0}, {Equal, "=", 4}, {Regex, `/usr\/local/`, 5}},
}, {
	"unquoted string with interior spaces",
	"name=John Ronald Reuel Tolkien",
	[]Token{{Word, "name", 0}, {Equal, "=", 4}, {SpacedString, "John Ronald Reuel Tolkien", 5}},
}, {
	"unquoted string with plus signs",
	"name=John+Smith",
	[]Token{{Word, "name", 0}, {Equal, "=", 4}, {SpacedString, "John+Smith", 5}},
}, {
	"trailing space is not captured",
	"name=John Smith &b=1",
	[]Token{
		{Word, "name", 0}, {Equal, "=", 4}, {SpacedString, "John Smith", 5},
		{And, "&", 16}, {Word, "b", 17}, {Equal, "=", 18}, {Number, "1", 19},
	},
}, {
	"punctuation",
	"(a=1^b=2)&role{x,y}&c!{z}",
	[]Token{
		{LeftParen, "(", 0}, {Word, "a", 1}, {Equal, "=", 2}, {Number, "1", 3},
		{Or, "^", 4}, {Word, "b", 5}, {Equal, "=", 6}, {Number, "2", 7},
		{RightParen, ")", 8}, {And, "&", 9},
		{Word, "role", 10}, {LeftBrace, "{", 14}, {Word, "x", 15}, {Comma, ",", 16},
		{Word, "y", 17}, {RightBrace, "}", 18}, {And, "&", 19},
		{Word, "c", 20}, {Bang, "!", 21}, {LeftBrace, "{", 22}, {Word, "z", 23},
		{RightBrace, "}", 24},
	},
}, {
	"reserved keywords",
	"$exists=a&$!exists=b",
	[]Token{
		{Keyword, "$exists", 0}, {Equal, "=", 7}, {Word, "a", 8},
		{And, "&", 9},
		{Keyword, "$!exists", 10}, {Equal, "=", 18}, {Word, "b", 19},
	},
}, {
	"dotted field path",
	"address.city=Paris",
	[]Token{{Word, "address.city", 0}, {Equal, "=", 12}, {Word, "Paris", 13}},
}, {
	"between",
	"25<age<35",
	[]Token{{Number, "25", 0}, {Less, "<", 2}, {Word, "age", 3}, {Less, "<", 6}, {Number, "35", 7}},
}, {
	"whitespace is discarded",
	"  a \t=\n 1 ",
	[]Token{{Word, "a", 2}, {Equal, "=", 5}, {Number, "1", 8}},
}}

func (s *LexSuite) TestScan(c *gc.C) {
	for i, test := range scanTests {
		toks, err := Scan(test.input)
		if !c.Check(err, gc.IsNil, gc.Commentf("test %d failed (Scan):\nsummary: %s\ninput: %s", i, test.summary, test.input)) {
			continue
		}
		c.Check(toks, gc.DeepEquals, test.expected, gc.Commentf("test %d failed (Scan):\nsummary: %s\ninput: %s", i, test.summary, test.input))
	}
}

func (s *LexSuite) TestScanErrors(c *gc.C) {
	tests := []struct {
		input    string
		expected string
	}{{
		"a=#",
		`unexpected character "#" near char 2`,
	}, {
		"a='abc",
		`missing closing quote in string literal "'" near char 2`,
	}, {
		`b="abc`,
		`missing closing quote in string literal "\"" near char 2`,
	}, {
		"bio=~/unterminated",
		`missing closing slash in regex literal "/" near char 5`,
	}, {
		"a=$",
		`unexpected character "\$" near char 2`,
	}}
	for _, test := range tests {
		toks, err := Scan(test.input)
		c.Assert(err, gc.ErrorMatches, test.expected, gc.Commentf("input: %s", test.input))
		c.Assert(toks, gc.IsNil)
	}
}

func (s *LexSuite) TestScanErrorOffsets(c *gc.C) {
	inputs := []string{"a=#", "name='x", "##", "a=1&b=§"}
	for _, input := range inputs {
		_, err := Scan(input)
		c.Assert(err, gc.NotNil, gc.Commentf("input: %s", input))
		lexErr, ok := err.(*Error)
		c.Assert(ok, gc.Equals, true)
		c.Assert(lexErr.Offset >= 0 && lexErr.Offset < len(input), gc.Equals, true,
			gc.Commentf("offset %d out of bounds for input %q", lexErr.Offset, input))
	}
}

// Re-scanning the exact source text of any token reproduces the same token.
func (s *LexSuite) TestRescanRoundTrip(c *gc.C) {
	for _, test := range scanTests {
		toks, err := Scan(test.input)
		c.Assert(err, gc.IsNil)
		for _, tok := range toks {
			again, err := Scan(tok.Text)
			c.Assert(err, gc.IsNil, gc.Commentf("token text: %q", tok.Text))
			c.Assert(again, gc.HasLen, 1, gc.Commentf("token text: %q", tok.Text))
			c.Assert(again[0].Kind, gc.Equals, tok.Kind, gc.Commentf("token text: %q", tok.Text))
			c.Assert(again[0].Text, gc.Equals, tok.Text, gc.Commentf("token text: %q", tok.Text))
		}
	}
}

func FuzzScan(f *testing.F) {
	for _, test := range scanTests {
		f.Add(test.input)
	}
	f.Fuzz(func(t *testing.T, s string) {
		Scan(s)
	})
}
