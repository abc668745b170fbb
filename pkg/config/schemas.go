package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// tierDefinition is the CUE definition every CUE tier source is unified with.
const tierDefinition = "#Tier"

// tierSchema renders the #Tier definition from the key registry. Every key is
// optional and may be null; unknown fields are left open so they can be
// reported individually like in YAML sources.
func tierSchema() string {
	var b strings.Builder
	b.WriteString("// Tier schema for cascade configuration sources\n")
	b.WriteString(tierDefinition + ": {\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "\t%s?: %s | null\n", k.Name, cueType(k.Type))
	}
	b.WriteString("\t...\n}\n")
	return b.String()
}

func cueType(t KeyType) string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeList:
		return "[...(string | number)] | string"
	default:
		return "string"
	}
}

// SchemaRegistry holds the compiled tier schema.
type SchemaRegistry struct {
	ctx  *cue.Context
	tier cue.Value
}

// NewSchemaRegistry compiles the built-in tier schema.
func NewSchemaRegistry(ctx *cue.Context) (*SchemaRegistry, error) {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	val := ctx.CompileString(tierSchema(), cue.Filename("tier_schema.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile tier schema: %w", err)
	}
	def := val.LookupPath(cue.ParsePath(tierDefinition))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("tier schema has no %s definition: %w", tierDefinition, err)
	}
	return &SchemaRegistry{ctx: ctx, tier: def}, nil
}

// ValidateTier unifies a CUE tier source with #Tier and requires the result
// to be concrete.
func (sr *SchemaRegistry) ValidateTier(v cue.Value) error {
	unified := sr.tier.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
