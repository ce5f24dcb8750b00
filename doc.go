/*
Package urlair converts a compact, URL-safe query language into structured
filter documents, so a single GET request can express the filters, sort and
paging directives and projections that would otherwise need a JSON POST body.

The raw query string is split into segments. Segments starting with the $
sigil are control directives (paging, sorting, projection); everything else
is filter expression text, parsed into a predicate tree of comparisons
combined with AND and OR.

# Filter expressions

A comparison is a field name, an operator and a literal:

	name=Fred
	age>=18
	city!=London
	bio=~/go(pher)?s/i

Literals are typed: bare numbers become numbers, true/false become booleans,
null becomes null and everything else is a string. Quoting forces the string
form, so '25' stays the string "25". A bare value with a leading zero such as
007 also stays a string. Unquoted values may contain spaces.

Comparisons combine with & (AND, binds tighter) and ^ (OR), with parentheses
for grouping:

	city=Paris & (age>=18 ^ guardian=true)

Three more forms round out the grammar. A between clause bounds one field
from both sides:

	25<age<35
	1.50<=height<=2.10

A membership list tests a field against explicit values, with ! for
exclusion:

	role{Admin,Editor}
	status!{Deleted,Suspended}

And the existence keywords test for presence of fields:

	$exists=phone,email
	$!exists=deleted_at

Constraints joined with & are merged where that cannot lose information: the
two range bounds above collapse into one document, while two conflicting
equalities on the same field are kept as separate entries of an explicit
conjunction rather than one silently overwriting the other.

# Control directives

	$limit=10
	$skip=20
	$sort=-age,name
	$fields=name,age,city

Directives urlair does not recognise are passed through verbatim in the
control map. Alongside the tree, every parse returns a usage map recording
which operator tags were used with which fields, including synthetic tags for
the sort and projection directives; gateway code can use it to reject or
audit queries before running them.

# Running parsed queries

The predicate trees are document-store filter documents at heart. The
mongoshim package renders them to bson for the official MongoDB driver, and
the sqlshim package renders them to parameterised SQL WHERE clauses:

	q, err := urlair.Parse("city=Paris&age>=21&$sort=-age&$limit=3")
	...
	clause, args, err := sqlshim.Where(q.Filter)
	// clause: "age >= ? AND city = ?", args: [21, "Paris"]
*/
package urlair
