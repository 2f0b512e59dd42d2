// Package shape turns flat, possibly join-duplicated result rows into the records
// callers receive: flat documents with prefixed join columns, or nested documents
// holding one-to-one objects and one-to-many lists.
package shape

import (
	"fmt"
	"sort"
	"strings"

	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
)

// internalPrefix marks labels the compiler adds for its own use.
const internalPrefix = "__"

// Flat copies base columns and writes each joined column as `{prefix}{column}`.
// A joined column never overwrites a key already taken by the base.
func Flat(rows []schema.Document, joins []query.PlannedJoin) []schema.Document {
	out := make([]schema.Document, len(rows))
	for i, row := range rows {
		doc := baseColumns(row)
		for _, j := range joins {
			for _, column := range j.Columns {
				key := j.FlatKey(column)
				if _, taken := doc[key]; taken {
					continue
				}
				doc[key] = row[j.Label(column)]
			}
		}
		out[i] = doc
	}
	return out
}

// Nest groups rows by the base primary key and nests every join under its output
// key. One-to-one joins become an object (nil when nothing matched); one-to-many
// joins become a de-duplicated, sorted list that is empty when nothing matched.
// Group order is the order in which base keys first appear.
func Nest(rows []schema.Document, base *schema.Model, joins []query.PlannedJoin) []schema.Document {
	type group struct {
		doc  schema.Document
		seen map[int]map[string]bool
	}

	groups := make([]*group, 0)
	index := make(map[string]*group)

	for _, row := range rows {
		keyValues, _ := base.KeyOf(row)
		key := KeyString(keyValues)

		g, ok := index[key]
		if !ok {
			doc := baseColumns(row)
			for _, j := range joins {
				if j.Relationship() == query.OneToMany {
					doc[j.OutputKey()] = []schema.Document{}
				} else {
					doc[j.OutputKey()] = nil
				}
			}
			g = &group{doc: doc, seen: make(map[int]map[string]bool)}
			groups = append(groups, g)
			index[key] = g
		}

		for _, j := range joins {
			child, matched := joinedColumns(row, j)
			if !matched {
				continue
			}
			outputKey := j.OutputKey()
			if j.Relationship() != query.OneToMany {
				if g.doc[outputKey] == nil {
					g.doc[outputKey] = child
				}
				continue
			}

			seen := g.seen[j.Index]
			if seen == nil {
				seen = make(map[string]bool)
				g.seen[j.Index] = seen
			}
			childKey := identity(child, j)
			if seen[childKey] {
				continue
			}
			seen[childKey] = true
			g.doc[outputKey] = append(g.doc[outputKey].([]schema.Document), child)
		}
	}

	out := make([]schema.Document, len(groups))
	for i, g := range groups {
		for _, j := range joins {
			if j.Relationship() == query.OneToMany && len(j.Sort) > 0 {
				SortDocuments(g.doc[j.OutputKey()].([]schema.Document), j.Sort)
			}
		}
		out[i] = g.doc
	}
	return out
}

// SortDocuments orders documents in place by the sort keys. The sort is stable.
func SortDocuments(docs []schema.Document, keys []query.SortKey) {
	sort.SliceStable(docs, func(a, b int) bool {
		for _, k := range keys {
			c := core.Compare(docs[a][k.Column], docs[b][k.Column])
			if c == 0 {
				continue
			}
			if k.Direction == query.SortDesc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func baseColumns(row schema.Document) schema.Document {
	doc := make(schema.Document, len(row))
	for label, value := range row {
		if strings.HasPrefix(label, internalPrefix) {
			continue
		}
		doc[label] = value
	}
	return doc
}

// joinedColumns extracts one join's columns from a row. matched is false when the
// join's primary key (or, without a selected key, every column) is null.
func joinedColumns(row schema.Document, j query.PlannedJoin) (schema.Document, bool) {
	child := make(schema.Document, len(j.Columns))
	anyValue := false
	for _, column := range j.Columns {
		v := row[j.Label(column)]
		child[column] = v
		anyValue = anyValue || v != nil
	}

	selectedKey := false
	keyPresent := false
	for _, pk := range j.Entity.Model.PrimaryKeys() {
		if v, ok := child[pk]; ok {
			selectedKey = true
			keyPresent = keyPresent || v != nil
		}
	}
	if selectedKey {
		return child, keyPresent
	}
	return child, anyValue
}

func identity(child schema.Document, j query.PlannedJoin) string {
	pks := j.Entity.Model.PrimaryKeys()
	values := make([]any, 0, len(pks))
	for _, pk := range pks {
		if v, ok := child[pk]; ok {
			values = append(values, v)
		}
	}
	if len(values) == len(pks) {
		return KeyString(values)
	}
	values = values[:0]
	for _, column := range j.Columns {
		values = append(values, child[column])
	}
	return KeyString(values)
}

// KeyString renders a key tuple as a comparable string. Values of different types
// never collide.
func KeyString(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "|")
}
