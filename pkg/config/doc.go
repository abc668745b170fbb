// Package config resolves workflow configuration from a layered cascade of
// tier sources.
//
// # Overview
//
// Every configuration key has a static default owned by the builtin tier.
// Higher tiers may override it, in strictly increasing precedence:
//
//	builtin < global < ancestor[0] .. ancestor[n] < project < workflow < cli
//
// Ancestor tiers come from enclosing projects, the outermost directory being
// ancestor[0].
//
// # Pass-through
//
// A tier that does not mention a key, or sets it to null, "" or [], has no
// opinion and defers to the closest lower tier with a non-empty value. There
// is no way to force a key back to empty above a tier that set it.
//
// Lists are atomic: a tier replaces the whole list or says nothing.
//
// # Sources
//
// Tier sources are flat YAML mappings or concrete CUE structs:
//
//	model: claude-opus-4
//	temperature: 0.2
//	depends_on: [outline, research]
//
// Nothing in a source is executed. Malformed sources contribute nothing and
// produce a Warning; resolution always succeeds.
//
// # Provenance
//
// ResolvedConfig records which tier owns each effective value. Its Canonical
// form excludes provenance and is stable across runs, which makes it suitable
// as fingerprint input.
package config
