package query

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/schema"
)

// JoinType represents the SQL join kind.
type JoinType string

const (
	InnerJoin JoinType = "inner"
	LeftJoin  JoinType = "left"
	RightJoin JoinType = "right"
	FullJoin  JoinType = "full"
)

// RelationshipType tells the Row Shaper how to nest a joined entity.
type RelationshipType string

const (
	OneToOne  RelationshipType = "one-to-one"
	OneToMany RelationshipType = "one-to-many"
)

// JoinOn links a column of an entity already in the query (From, empty for the
// base) to a column of the joined entity (To).
type JoinOn struct {
	From   string
	Column string
	To     string
}

// JoinSpec describes one join step. Joins are executed in the order given, so a
// many-to-many traversal lists the association before the far entity.
type JoinSpec struct {
	Model        *schema.Model
	On           []JoinOn
	Type         JoinType
	Alias        string
	Prefix       string
	Relationship RelationshipType
	Filters      Filters
	SortColumns  []string
	SortOrders   []string
	// Columns restricts the columns selected from this join.
	Columns []string
}

// PlannedJoin is a validated JoinSpec with its resolved pieces.
type PlannedJoin struct {
	Spec    JoinSpec
	Entity  Entity
	Index   int
	On      []JoinOn
	Filters []QueryFilter
	Columns []string
	Sort    []SortKey
}

// Label is the internal select label of a joined column.
func (p PlannedJoin) Label(column string) string {
	return fmt.Sprintf("__j%d_%s", p.Index, column)
}

// OutputKey is the key a nested join is stored under: the prefix with one trailing
// underscore removed, else the alias, else the model name.
func (p PlannedJoin) OutputKey() string {
	if p.Spec.Prefix != "" {
		return strings.TrimSuffix(p.Spec.Prefix, "_")
	}
	return p.Entity.Name()
}

// FlatKey is the key a joined column is stored under in flat mode.
func (p PlannedJoin) FlatKey(column string) string {
	return p.Spec.Prefix + column
}

// Relationship returns the relationship type, defaulting to one-to-one.
func (p PlannedJoin) Relationship() RelationshipType {
	if p.Spec.Relationship == "" {
		return OneToOne
	}
	return p.Spec.Relationship
}

// JoinPlanner validates join specifications and resolves their conditions.
type JoinPlanner struct {
	resolver *Resolver
}

// NewJoinPlanner creates a planner using resolver for per-join filters.
func NewJoinPlanner(resolver *Resolver) *JoinPlanner {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &JoinPlanner{resolver: resolver}
}

// Plan validates single and joins (mutually exclusive) and returns them in order.
func (p *JoinPlanner) Plan(base Entity, single *JoinSpec, joins []JoinSpec) ([]PlannedJoin, error) {
	if single != nil && len(joins) > 0 {
		return nil, core.NewConfigError("joins", "cannot use both a single join and a joins list at the same time")
	}
	if single != nil {
		joins = []JoinSpec{*single}
	}

	entities := []Entity{base}
	seen := map[string]bool{base.Name(): true}
	prefixes := map[string]bool{}
	planned := make([]PlannedJoin, 0, len(joins))

	for i, spec := range joins {
		if spec.Model == nil {
			return nil, core.NewConfigError("joins", "join %d has no model", i)
		}
		entity := Entity{Model: spec.Model, Alias: spec.Alias}
		if seen[entity.Name()] {
			if spec.Alias == "" {
				return nil, core.NewConfigError("joins", "model %s is joined more than once; give each join a distinct alias", spec.Model.Name)
			}
			return nil, core.NewConfigError("joins", "alias %s is already in use", spec.Alias)
		}
		if spec.Prefix != "" {
			if prefixes[spec.Prefix] {
				return nil, core.NewConfigError("joins", "join prefix %q is used more than once", spec.Prefix)
			}
			prefixes[spec.Prefix] = true
		}
		switch spec.Type {
		case "", InnerJoin, LeftJoin, RightJoin, FullJoin:
		default:
			return nil, core.NewConfigError("joins", "unsupported join type %q", spec.Type)
		}
		switch spec.Relationship {
		case "", OneToOne, OneToMany:
		default:
			return nil, core.NewConfigError("joins", "unsupported relationship type %q", spec.Relationship)
		}

		on := spec.On
		if len(on) == 0 {
			detected, err := detectJoinOn(entities, entity)
			if err != nil {
				return nil, err
			}
			on = []JoinOn{detected}
		}
		if err := validateJoinOn(entities, entity, on); err != nil {
			return nil, err
		}

		filters, err := p.resolver.Resolve(entity, spec.Filters)
		if err != nil {
			return nil, err
		}

		columns := spec.Columns
		if len(columns) == 0 {
			columns = spec.Model.ColumnNames()
		}
		for _, c := range columns {
			if !spec.Model.HasColumn(c) {
				return nil, core.NewConfigError("joins", "column %s not found on %s", c, spec.Model.Name)
			}
		}

		sortKeys, err := ParseSort(spec.SortColumns, spec.SortOrders)
		if err != nil {
			return nil, err
		}
		for _, k := range sortKeys {
			if !spec.Model.HasColumn(k.Column) {
				return nil, core.NewConfigError("sort_columns", "Invalid column name: %s", k.Column)
			}
		}

		planned = append(planned, PlannedJoin{
			Spec:    spec,
			Entity:  entity,
			Index:   i,
			On:      on,
			Filters: filters,
			Columns: columns,
			Sort:    sortKeys,
		})
		entities = append(entities, entity)
		seen[entity.Name()] = true
	}
	return planned, nil
}

// Scopes returns the entities of planned joins, for qualified filter keys.
func Scopes(joins []PlannedJoin) []Entity {
	scopes := make([]Entity, len(joins))
	for i, j := range joins {
		scopes[i] = j.Entity
	}
	return scopes
}

func findEntity(entities []Entity, name string) (Entity, bool) {
	if name == "" {
		return entities[0], true
	}
	for _, e := range entities {
		if e.Name() == name {
			return e, true
		}
	}
	return Entity{}, false
}

func validateJoinOn(entities []Entity, target Entity, on []JoinOn) error {
	for _, cond := range on {
		from, ok := findEntity(entities, cond.From)
		if !ok {
			return core.NewConfigError("join_on", "join on %s references %s before it is joined", target.Name(), cond.From)
		}
		if !from.Model.HasColumn(cond.Column) {
			return core.NewConfigError("join_on", "column %s not found on %s", cond.Column, from.Name())
		}
		if !target.Model.HasColumn(cond.To) {
			return core.NewConfigError("join_on", "column %s not found on %s", cond.To, target.Name())
		}
	}
	return nil
}

// detectJoinOn infers a condition from foreign keys, looking at the base first and
// then at earlier joins.
func detectJoinOn(entities []Entity, target Entity) (JoinOn, error) {
	for i, e := range entities {
		from := ""
		if i > 0 {
			from = e.Name()
		}
		for _, col := range e.Model.Columns {
			if col.References != nil && col.References.Model == target.Model.Name {
				return JoinOn{From: from, Column: col.Name, To: col.References.Column}, nil
			}
		}
		for _, col := range target.Model.Columns {
			if col.References != nil && col.References.Model == e.Model.Name {
				return JoinOn{From: from, Column: col.References.Column, To: col.Name}, nil
			}
		}
	}
	return JoinOn{}, core.NewConfigError("join_on", "could not detect a join condition for %s; provide On", target.Name())
}
