package config

import (
	"strconv"
	"strings"
)

// KeyType is the declared type of a configuration key.
type KeyType string

const (
	// TypeString is a scalar string.
	TypeString KeyType = "string"

	// TypeNumber is a scalar number stored in canonical decimal form.
	TypeNumber KeyType = "number"

	// TypeList is an ordered list of strings, overridden atomically.
	TypeList KeyType = "list"
)

// Key names. The set is closed: tier sources cannot introduce new keys.
const (
	KeyModel          = "model"
	KeyTemperature    = "temperature"
	KeyMaxTokens      = "max_tokens"
	KeySystemPrompts  = "system_prompts"
	KeyOutputFormat   = "output_format"
	KeyDependsOn      = "depends_on"
	KeyInputFiles     = "input_files"
	KeyInputPattern   = "input_pattern"
	KeyContextFiles   = "context_files"
	KeyContextPattern = "context_pattern"
	KeyCommand        = "command"
	KeyTimeout        = "timeout"
)

// Key describes one configuration key and its static default.
type Key struct {
	Name    string
	Type    KeyType
	Default Value
}

// keys is the ConfigStore: every known key in declaration order.
var keys = []Key{
	{Name: KeyModel, Type: TypeString, Default: StringValue("claude-sonnet-4-5")},
	{Name: KeyTemperature, Type: TypeNumber, Default: NumberValue(1)},
	{Name: KeyMaxTokens, Type: TypeNumber, Default: NumberValue(8192)},
	{Name: KeySystemPrompts, Type: TypeList, Default: ListValue("base")},
	{Name: KeyOutputFormat, Type: TypeString, Default: StringValue("md")},
	{Name: KeyDependsOn, Type: TypeList, Default: ListValue()},
	{Name: KeyInputFiles, Type: TypeList, Default: ListValue()},
	{Name: KeyInputPattern, Type: TypeString, Default: StringValue("")},
	{Name: KeyContextFiles, Type: TypeList, Default: ListValue()},
	{Name: KeyContextPattern, Type: TypeString, Default: StringValue("")},
	{Name: KeyCommand, Type: TypeList, Default: ListValue()},
	{Name: KeyTimeout, Type: TypeNumber, Default: NumberValue(600)},
}

var keyIndex = func() map[string]Key {
	idx := make(map[string]Key, len(keys))
	for _, k := range keys {
		idx[k.Name] = k
	}
	return idx
}()

// Keys returns every known key in declaration order.
func Keys() []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}

// Lookup returns the key with the given name.
func Lookup(name string) (Key, bool) {
	k, ok := keyIndex[name]
	return k, ok
}

// Default returns the static default of key, or the empty Value for an
// unknown key.
func Default(name string) Value {
	return keyIndex[name].Default
}

// Value is a raw or resolved configuration value. The zero Value is empty and
// means "no opinion".
type Value struct {
	scalar string
	list   []string
	isList bool
}

// StringValue returns a scalar value.
func StringValue(s string) Value {
	return Value{scalar: s}
}

// NumberValue returns a scalar value holding f in canonical form.
func NumberValue(f float64) Value {
	return Value{scalar: strconv.FormatFloat(f, 'g', -1, 64)}
}

// ListValue returns a list value. Items are copied.
func ListValue(items ...string) Value {
	list := make([]string, len(items))
	copy(list, items)
	return Value{list: list, isList: true}
}

// IsEmpty reports whether v carries no opinion: an empty string or empty list.
func (v Value) IsEmpty() bool {
	if v.isList {
		return len(v.list) == 0
	}
	return v.scalar == ""
}

// IsList reports whether v is a list value.
func (v Value) IsList() bool {
	return v.isList
}

// String returns the scalar, or the list items joined by commas.
func (v Value) String() string {
	if v.isList {
		return strings.Join(v.list, ",")
	}
	return v.scalar
}

// Items returns a copy of the list items, or the scalar as a single item.
func (v Value) Items() []string {
	if !v.isList {
		if v.scalar == "" {
			return nil
		}
		return []string{v.scalar}
	}
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out
}

// Float parses the scalar as a number.
func (v Value) Float() (float64, error) {
	return strconv.ParseFloat(v.scalar, 64)
}

// Equal reports whether two values are identical.
func (v Value) Equal(o Value) bool {
	if v.isList != o.isList {
		return false
	}
	if !v.isList {
		return v.scalar == o.scalar
	}
	if len(v.list) != len(o.list) {
		return false
	}
	for i := range v.list {
		if v.list[i] != o.list[i] {
			return false
		}
	}
	return true
}

// coerce converts raw to the declared type of k. Scalars given for list keys
// become single-item lists; numbers are canonicalized.
func coerce(k Key, raw Value) (Value, error) {
	switch k.Type {
	case TypeList:
		return ListValue(raw.Items()...), nil
	case TypeNumber:
		if raw.isList {
			return Value{}, errWrongType(k, "list")
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw.scalar), 64)
		if err != nil {
			return Value{}, errWrongType(k, "non-numeric value "+strconv.Quote(raw.scalar))
		}
		return NumberValue(f), nil
	default:
		if raw.isList {
			return Value{}, errWrongType(k, "list")
		}
		return StringValue(raw.scalar), nil
	}
}

type typeError struct {
	key  string
	want KeyType
	got  string
}

func (e *typeError) Error() string {
	return "key " + e.key + " expects " + string(e.want) + ", got " + e.got
}

func errWrongType(k Key, got string) error {
	return &typeError{key: k.Name, want: k.Type, got: got}
}
