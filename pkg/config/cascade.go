package config

// Sources names the tier source files of a project below the workflow tier.
// Empty paths are skipped.
type Sources struct {
	Global    string
	Ancestors []string
	Project   string
}

// Cascade is the lower part of the tier stack (builtin through project),
// loaded once per run and shared by every workflow resolution.
type Cascade struct {
	loader   *Loader
	base     []Layer
	warnings []Warning
}

// NewCascade loads the global, ancestor, and project tiers.
func NewCascade(loader *Loader, src Sources) *Cascade {
	c := &Cascade{loader: loader}
	c.add(Tier{Kind: TierGlobal, Source: src.Global}, src.Global)
	for i, path := range src.Ancestors {
		c.add(Tier{Kind: TierAncestor, Index: i, Source: path}, path)
	}
	c.add(Tier{Kind: TierProject, Source: src.Project}, src.Project)
	return c
}

func (c *Cascade) add(t Tier, path string) {
	if path == "" {
		return
	}
	values, warnings := c.loader.LoadFile(path)
	c.warnings = append(c.warnings, warnings...)
	c.base = append(c.base, Layer{Tier: t, Values: values})
}

// Warnings returns the warnings produced while loading the shared tiers.
func (c *Cascade) Warnings() []Warning {
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Layers returns the shared layers in precedence order.
func (c *Cascade) Layers() []Layer {
	out := make([]Layer, len(c.base))
	copy(out, c.base)
	return out
}

// Resolve produces the ResolvedConfig for a workflow whose tier source is at
// workflowPath (may be empty for project-level resolution), topped by the cli
// tier. Warnings cover the workflow tier only.
func (c *Cascade) Resolve(workflowPath string, cli TierValues) (*ResolvedConfig, []Warning) {
	layers := c.Layers()
	var warnings []Warning
	if workflowPath != "" {
		values, ws := c.loader.LoadFile(workflowPath)
		warnings = ws
		layers = append(layers, Layer{Tier: Tier{Kind: TierWorkflow, Source: workflowPath}, Values: values})
	}
	if len(cli) > 0 {
		layers = append(layers, Layer{Tier: Tier{Kind: TierCLI}, Values: cli})
	}
	return ResolveAll(layers), warnings
}
