// Package grid models the multi-dimensional parameter space of a sweep: the
// swept axes (dimensions), the Cartesian product of their values (sections),
// and the lookup table of parameters a pipeline accepts as overrides.
package grid

import (
	"fmt"
	"sort"
	"strings"
)

// Dimension defines one parameter axis to sweep. Values may be listed
// explicitly or generated from Start/End/Step for numeric types. A Dimension
// is immutable once the sweep starts.
type Dimension struct {
	Name   string        `json:"name"`             // override key passed to the pipeline, e.g. "snr_db"
	Type   string        `json:"type"`             // "float64", "int", "bool", "string"
	Values []interface{} `json:"values,omitempty"` // explicit values (or generated from the range fields)

	// Range fields for numeric types; ignored when Values is set.
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Step  float64 `json:"step,omitempty"`
}

// Expand fills Values from the range fields if they are empty, coercing
// explicit values to the declared type. A dimension that still has zero
// values afterwards is invalid.
func (d *Dimension) Expand() error {
	if d.Name == "" {
		return fmt.Errorf("dimension has no name")
	}
	if len(d.Values) > 0 {
		for i, v := range d.Values {
			cv, err := coerceValue(v, d.Type)
			if err != nil {
				return fmt.Errorf("dimension %q value %d: %w", d.Name, i, err)
			}
			d.Values[i] = cv
		}
		return nil
	}

	switch d.Type {
	case "float64":
		if d.Step <= 0 {
			return fmt.Errorf("dimension %q: step must be positive for float64 range", d.Name)
		}
		for _, v := range GenerateRange(d.Start, d.End, d.Step) {
			d.Values = append(d.Values, v)
		}
	case "int":
		if d.Step <= 0 {
			return fmt.Errorf("dimension %q: step must be positive for int range", d.Name)
		}
		for _, v := range GenerateIntRange(int(d.Start), int(d.End), int(d.Step)) {
			d.Values = append(d.Values, v)
		}
	case "bool":
		d.Values = []interface{}{false, true}
	case "string":
		return fmt.Errorf("dimension %q: string dimensions require explicit values", d.Name)
	default:
		return fmt.Errorf("dimension %q: unknown type %q", d.Name, d.Type)
	}

	if len(d.Values) == 0 {
		return fmt.Errorf("dimension %q has no values", d.Name)
	}
	return nil
}

// Value is one coordinate component of a Section.
type Value struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Section is one coordinate in the Cartesian product: exactly one value per
// dimension. Index is the section's position in enumeration order and is
// stable for a given dimension list.
type Section struct {
	Index  int     `json:"index"`
	Values []Value `json:"values"`
}

// Overrides returns the section's coordinate as a parameter override map,
// the form consumed by the trial pipeline.
func (s Section) Overrides() map[string]interface{} {
	m := make(map[string]interface{}, len(s.Values))
	for _, v := range s.Values {
		m[v.Name] = v.Value
	}
	return m
}

// String renders the coordinate as "name=value" pairs in dimension order.
func (s Section) String() string {
	if len(s.Values) == 0 {
		return "baseline"
	}
	parts := make([]string, len(s.Values))
	for i, v := range s.Values {
		parts[i] = fmt.Sprintf("%s=%v", v.Name, v.Value)
	}
	return strings.Join(parts, " ")
}

// Enumerate produces the full Cartesian product of the given dimensions as a
// deterministic sequence of sections: the first dimension varies slowest, the
// last fastest. An empty dimension list yields exactly one baseline section.
// Every dimension is expanded and validated first; a dimension with zero
// values is rejected.
func Enumerate(dims []Dimension) ([]Section, error) {
	seen := make(map[string]bool, len(dims))
	for i := range dims {
		if err := dims[i].Expand(); err != nil {
			return nil, err
		}
		if seen[dims[i].Name] {
			return nil, fmt.Errorf("duplicate dimension %q", dims[i].Name)
		}
		seen[dims[i].Name] = true
	}

	total := 1
	for _, d := range dims {
		total *= len(d.Values)
	}

	sections := make([]Section, total)
	for i := range sections {
		sections[i].Index = i
		sections[i].Values = make([]Value, len(dims))
	}

	// Stride of the last dimension is 1; earlier dimensions repeat over the
	// combined cycle of everything after them.
	stride := 1
	for dim := len(dims) - 1; dim >= 0; dim-- {
		vals := dims[dim].Values
		cycle := len(vals)
		for i := 0; i < total; i++ {
			sections[i].Values[dim] = Value{Name: dims[dim].Name, Value: vals[(i/stride)%cycle]}
		}
		stride *= cycle
	}

	return sections, nil
}

// ParamTable is the settable-parameter lookup built once at startup. It maps
// each override key a pipeline accepts to its expected type, so malformed
// dimension lists are rejected before any trial runs.
type ParamTable struct {
	params map[string]string // name -> type
}

// NewParamTable creates an empty parameter table.
func NewParamTable() *ParamTable {
	return &ParamTable{params: make(map[string]string)}
}

// Register declares a settable parameter and its type.
func (t *ParamTable) Register(name, typ string) {
	t.params[name] = typ
}

// Names returns the registered parameter names, sorted for stable output.
func (t *ParamTable) Names() []string {
	names := make([]string, 0, len(t.params))
	for n := range t.params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check validates that every dimension targets a registered parameter of the
// matching type.
func (t *ParamTable) Check(dims []Dimension) error {
	for _, d := range dims {
		typ, ok := t.params[d.Name]
		if !ok {
			return fmt.Errorf("dimension %q does not match any settable parameter (have: %s)",
				d.Name, strings.Join(t.Names(), ", "))
		}
		if d.Type != typ {
			return fmt.Errorf("dimension %q has type %q but parameter expects %q", d.Name, d.Type, typ)
		}
	}
	return nil
}
