package urlair_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/urlair"
	"github.com/canonical/urlair/filter"
)

// Hook up gocheck into the "go test" runner.
func TestUrlair(t *testing.T) { TestingT(t) }

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

var queryTests = []struct {
	summary        string
	rawQuery       string
	expectedFilter string
	expected       urlair.Controls
}{{
	"filter only",
	"name=Fred&age>=21",
	`{age: {$gte: 21}, name: "Fred"}`,
	urlair.Controls{},
}, {
	"controls only",
	"$limit=10&$skip=20",
	"",
	urlair.Controls{"limit": "10", "skip": "20"},
}, {
	"filter and controls mixed",
	"city=Paris&$sort=-age,name&age>=18&$limit=3",
	`{age: {$gte: 18}, city: "Paris"}`,
	urlair.Controls{"sort": "-age,name", "limit": "3"},
}, {
	"unrecognised directives pass through verbatim",
	"$explain=true&$hint=age_idx&a=1",
	"{a: 1}",
	urlair.Controls{"explain": "true", "hint": "age_idx"},
}, {
	"existence keywords stay in the filter",
	"$exists=phone&$!exists=deleted_at&$limit=5",
	"{deleted_at: {$exists: false}, phone: {$exists: true}}",
	urlair.Controls{"limit": "5"},
}, {
	"percent decoding",
	"city=New%20York&name=John+Smith",
	`{city: "New York", name: "John Smith"}`,
	urlair.Controls{},
}, {
	"encoded operators decode before parsing",
	"age%3E%3D18",
	"{age: {$gte: 18}}",
	urlair.Controls{},
}, {
	"disjunction across segments",
	"a=1%5Eb=2",
	"or[{a: 1}, {b: 2}]",
	urlair.Controls{},
}, {
	"leading question mark tolerated",
	"?a=1&$limit=2",
	"{a: 1}",
	urlair.Controls{"limit": "2"},
}, {
	"empty segments ignored",
	"a=1&&b=2&",
	"{a: 1, b: 2}",
	urlair.Controls{},
}}

func (s *PackageSuite) TestParse(c *C) {
	for i, test := range queryTests {
		q, err := urlair.Parse(test.rawQuery)
		if err != nil {
			c.Errorf("test %d failed (Parse):\nsummary: %s\nquery: %s\nerr: %s\n", i, test.summary, test.rawQuery, err)
			continue
		}
		got := ""
		if q.Filter != nil {
			got = q.Filter.String()
		}
		if got != test.expectedFilter {
			c.Errorf("test %d failed (Parse):\nsummary: %s\nquery: %s\nexpected: %s\nactual:   %s\n", i, test.summary, test.rawQuery, test.expectedFilter, got)
		}
		c.Check(q.Controls, DeepEquals, test.expected, Commentf("test %d: %s", i, test.summary))
	}
}

func (s *PackageSuite) TestParseErrors(c *C) {
	tests := []struct {
		rawQuery string
		expected string
	}{{
		"a=%zz",
		`cannot decode query segment "a=%zz": .*`,
	}, {
		"age==5",
		`cannot parse filter expression: expected value, got "=" near char 4`,
	}, {
		"a='oops",
		`cannot parse filter expression: missing closing quote in string literal "'" near char 2`,
	}}
	for _, test := range tests {
		q, err := urlair.Parse(test.rawQuery)
		c.Assert(err, ErrorMatches, test.expected, Commentf("query: %s", test.rawQuery))
		c.Assert(q, IsNil)
	}
}

func (s *PackageSuite) TestControls(c *C) {
	q, err := urlair.Parse("$limit=10&$skip=2&$sort=-age,name&$fields=name,age")
	c.Assert(err, IsNil)

	limit, ok, err := q.Controls.Limit()
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(limit, Equals, int64(10))

	skip, ok, err := q.Controls.Skip()
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(skip, Equals, int64(2))

	c.Assert(q.Controls.Sort(), DeepEquals, []urlair.SortField{
		{Field: "age", Descending: true},
		{Field: "name"},
	})
	c.Assert(q.Controls.Projection(), DeepEquals, []string{"name", "age"})
}

func (s *PackageSuite) TestControlsAbsent(c *C) {
	q, err := urlair.Parse("a=1")
	c.Assert(err, IsNil)
	_, ok, err := q.Controls.Limit()
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
	c.Assert(q.Controls.Sort(), IsNil)
	c.Assert(q.Controls.Projection(), IsNil)
}

func (s *PackageSuite) TestControlsInvalid(c *C) {
	q, err := urlair.Parse("$limit=lots&$skip=-1")
	c.Assert(err, IsNil)

	_, ok, err := q.Controls.Limit()
	c.Assert(ok, Equals, true)
	c.Assert(err, ErrorMatches, `cannot parse \$limit directive: invalid integer "lots"`)

	_, ok, err = q.Controls.Skip()
	c.Assert(ok, Equals, true)
	c.Assert(err, ErrorMatches, `cannot parse \$skip directive: negative value "-1"`)
}

func (s *PackageSuite) TestUsageIncludesControlTags(c *C) {
	q, err := urlair.Parse("age>=21&$sort=-age,name&$fields=name,phone")
	c.Assert(err, IsNil)
	c.Assert(q.Usage, DeepEquals, filter.Usage{
		"age":   {filter.OpGte, filter.OpSort},
		"name":  {filter.OpSort, filter.OpProject},
		"phone": {filter.OpProject},
	})
}

func (s *PackageSuite) TestParseFilter(c *C) {
	node, usage, err := urlair.ParseFilter("age>=18 & age<=30")
	c.Assert(err, IsNil)
	c.Assert(node.String(), Equals, "{age: {$gte: 18, $lte: 30}}")
	c.Assert(usage, DeepEquals, filter.Usage{"age": {filter.OpGte, filter.OpLte}})
}

func (s *PackageSuite) TestEmptyQuery(c *C) {
	q, err := urlair.Parse("")
	c.Assert(err, IsNil)
	c.Assert(q.Filter, IsNil)
	c.Assert(q.Controls, DeepEquals, urlair.Controls{})
	c.Assert(q.Usage, DeepEquals, filter.Usage{})
}
