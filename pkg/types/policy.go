package types

// PolicyEffect is the effect of a row-level access policy.
type PolicyEffect string

const (
	EffectAllowAll PolicyEffect = "allow-all"
	EffectFilter   PolicyEffect = "filter"
)

// AccessPolicy is a row-level access rule on a table. Policies are read-only input.
type AccessPolicy struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Table string `json:"table,omitempty" yaml:"table,omitempty" toml:"table"`
	Role  string `json:"role" yaml:"role" toml:"role"`
	// Predicate is a SQL boolean expression over the table's columns.
	Predicate string       `json:"predicate" yaml:"predicate" toml:"predicate"`
	Effect    PolicyEffect `json:"effect" yaml:"effect" toml:"effect"`
}
