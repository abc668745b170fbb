package config

import "fmt"

// TierKind is a precedence level in the configuration cascade.
type TierKind int

// Tier kinds in ascending precedence.
const (
	TierBuiltin TierKind = iota
	TierGlobal
	TierAncestor
	TierProject
	TierWorkflow
	TierCLI
)

var tierKindNames = map[TierKind]string{
	TierBuiltin:  "builtin",
	TierGlobal:   "global",
	TierAncestor: "ancestor",
	TierProject:  "project",
	TierWorkflow: "workflow",
	TierCLI:      "cli",
}

// String returns the tier kind name.
func (k TierKind) String() string {
	if name, ok := tierKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(k))
}

// Tier identifies one concrete level. Index orders ancestor tiers, 0 being the
// outermost (oldest) directory; it is zero for every other kind.
type Tier struct {
	Kind   TierKind `json:"kind"`
	Index  int      `json:"index,omitempty"`
	Source string   `json:"source,omitempty"`
}

// Builtin is the tier owning static defaults.
var Builtin = Tier{Kind: TierBuiltin}

// Less reports whether t has lower precedence than o.
func (t Tier) Less(o Tier) bool {
	if t.Kind != o.Kind {
		return t.Kind < o.Kind
	}
	return t.Index < o.Index
}

// String returns the tier name, e.g. "project" or "ancestor[1]".
func (t Tier) String() string {
	if t.Kind == TierAncestor {
		return fmt.Sprintf("ancestor[%d]", t.Index)
	}
	return t.Kind.String()
}

// TierValues is one tier's contribution. A key absent from the map is "no opinion".
type TierValues map[string]Value

// Layer pairs a tier with its values.
type Layer struct {
	Tier   Tier
	Values TierValues
}
