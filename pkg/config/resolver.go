package config

import (
	"encoding/json"
	"sort"
)

// TierValue is one tier's optional raw value for a single key. A nil Value is absent.
type TierValue struct {
	Tier  Tier
	Value *Value
}

// Resolved is an effective value together with the tier that owns it.
type Resolved struct {
	Value Value
	Tier  Tier
}

// Resolve computes the effective value of key from per-tier values ordered from
// lowest to highest precedence. Absent and empty values defer to lower tiers;
// the last non-empty value wins. Unknown keys resolve to an empty builtin value.
func Resolve(key string, tiers []TierValue) Resolved {
	k, _ := Lookup(key)
	result := Resolved{Value: k.Default, Tier: Builtin}
	for _, tv := range tiers {
		if tv.Value == nil || tv.Value.IsEmpty() {
			continue
		}
		result = Resolved{Value: *tv.Value, Tier: tv.Tier}
	}
	return result
}

// ResolveAll resolves every known key across layers, which must be ordered from
// lowest to highest precedence.
func ResolveAll(layers []Layer) *ResolvedConfig {
	entries := make(map[string]Resolved, len(keys))
	for _, k := range keys {
		tiers := make([]TierValue, 0, len(layers))
		for _, layer := range layers {
			tv := TierValue{Tier: layer.Tier}
			if v, ok := layer.Values[k.Name]; ok {
				v := v
				tv.Value = &v
			}
			tiers = append(tiers, tv)
		}
		entries[k.Name] = Resolve(k.Name, tiers)
	}
	return &ResolvedConfig{entries: entries}
}

// ResolvedConfig maps every key to its effective value and owning tier.
// It is never mutated after construction.
type ResolvedConfig struct {
	entries map[string]Resolved
}

// Entry is one row of a resolved configuration.
type Entry struct {
	Key   string `json:"key"`
	Value Value  `json:"-"`
	Tier  Tier   `json:"-"`
}

// MarshalJSON renders the entry for `cascade config --json`.
func (e Entry) MarshalJSON() ([]byte, error) {
	var value interface{} = e.Value.String()
	if e.Value.IsList() {
		value = e.Value.Items()
	}
	return json.Marshal(struct {
		Key    string      `json:"key"`
		Value  interface{} `json:"value"`
		Tier   string      `json:"tier"`
		Source string      `json:"source,omitempty"`
	}{e.Key, value, e.Tier.String(), e.Tier.Source})
}

// Get returns the resolved entry for key.
func (r *ResolvedConfig) Get(key string) (Resolved, bool) {
	res, ok := r.entries[key]
	return res, ok
}

// String returns the scalar value of key.
func (r *ResolvedConfig) String(key string) string {
	return r.entries[key].Value.String()
}

// Number returns the numeric value of key, or zero if it does not parse.
func (r *ResolvedConfig) Number(key string) float64 {
	f, err := r.entries[key].Value.Float()
	if err != nil {
		return 0
	}
	return f
}

// List returns a copy of the list value of key.
func (r *ResolvedConfig) List(key string) []string {
	return r.entries[key].Value.Items()
}

// Owner returns the tier that determined key.
func (r *ResolvedConfig) Owner(key string) Tier {
	return r.entries[key].Tier
}

// Entries returns all entries in key declaration order.
func (r *ResolvedConfig) Entries() []Entry {
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		res := r.entries[k.Name]
		out = append(out, Entry{Key: k.Name, Value: res.Value, Tier: res.Tier})
	}
	return out
}

// Canonical returns a deterministic serialization of the effective values,
// sorted by key. Provenance is excluded: moving a value between tiers without
// changing it does not change the bytes.
func (r *ResolvedConfig) Canonical() []byte {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	type pair struct {
		K string   `json:"k"`
		S string   `json:"s,omitempty"`
		L []string `json:"l,omitempty"`
	}
	pairs := make([]pair, 0, len(names))
	for _, name := range names {
		v := r.entries[name].Value
		p := pair{K: name}
		if v.IsList() {
			p.L = v.Items()
		} else {
			p.S = v.String()
		}
		pairs = append(pairs, p)
	}
	// Marshalling plain strings cannot fail.
	data, _ := json.Marshal(pairs)
	return data
}
