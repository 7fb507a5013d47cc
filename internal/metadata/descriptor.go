// Package metadata locates and parses plugin descriptors.
//
// A descriptor declares a plugin's identity, display strings, category,
// capability tags and an ordered list of setting schemas. Descriptors are
// looked up by plugin name along an ordered search path; the first
// directory holding a matching file wins and directories are never merged.
//
// Supported formats, in the order they are tried within one directory:
//
//	<name>.toml, <name>.yaml, <name>.yml, <name>.json, <name>.hcl
package metadata

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/plugreg/internal/config/schema"
)

// namePattern matches valid plugin and setting names.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidName reports whether name is usable as a plugin or setting name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Descriptor is the parsed, validated metadata of one plugin.
type Descriptor struct {
	Name      string
	ShortDesc string
	LongDesc  string
	Category  string

	// Features lists the capability tags the plugin provides.
	Features []string
	// Requires and Conflicts name other plugins. They are informational.
	Requires  []string
	Conflicts []string

	// Groups lists the setting groups in order of first appearance.
	Groups []string

	// Settings in declaration order.
	Settings []SettingDesc

	// Source is the file the descriptor was read from.
	Source string
}

// Setting returns the named setting description.
func (d *Descriptor) Setting(name string) (SettingDesc, bool) {
	for _, s := range d.Settings {
		if s.Name == name {
			return s, true
		}
	}
	return SettingDesc{}, false
}

// SettingDesc is the declared metadata of one setting.
type SettingDesc struct {
	Name      string
	ShortDesc string
	LongDesc  string
	Group     string
	SubGroup  string
	Hints     []string

	Schema *schema.Schema

	// Default is the canonical default value. It always satisfies Schema.
	Default any

	ReadOnly   bool
	Integrated bool
}

// rawDescriptor is the on-disk shape shared by the TOML, YAML and JSON
// formats.
type rawDescriptor struct {
	Name      string       `toml:"name" yaml:"name" json:"name"`
	ShortDesc string       `toml:"short_desc" yaml:"short_desc" json:"short_desc"`
	LongDesc  string       `toml:"long_desc" yaml:"long_desc" json:"long_desc"`
	Category  string       `toml:"category" yaml:"category" json:"category"`
	Features  []string     `toml:"features" yaml:"features" json:"features"`
	Requires  []string     `toml:"requires" yaml:"requires" json:"requires"`
	Conflicts []string     `toml:"conflicts" yaml:"conflicts" json:"conflicts"`
	Settings  []rawSetting `toml:"setting" yaml:"setting" json:"setting"`
}

type rawSetting struct {
	Name       string       `toml:"name" yaml:"name" json:"name"`
	Type       string       `toml:"type" yaml:"type" json:"type"`
	ShortDesc  string       `toml:"short_desc" yaml:"short_desc" json:"short_desc"`
	LongDesc   string       `toml:"long_desc" yaml:"long_desc" json:"long_desc"`
	Group      string       `toml:"group" yaml:"group" json:"group"`
	SubGroup   string       `toml:"subgroup" yaml:"subgroup" json:"subgroup"`
	Hints      []string     `toml:"hints" yaml:"hints" json:"hints"`
	Default    any          `toml:"default" yaml:"default" json:"default"`
	ReadOnly   bool         `toml:"read_only" yaml:"read_only" json:"read_only"`
	Integrated bool         `toml:"integrated" yaml:"integrated" json:"integrated"`
	Min        *float64     `toml:"min" yaml:"min" json:"min"`
	Max        *float64     `toml:"max" yaml:"max" json:"max"`
	Precision  float64      `toml:"precision" yaml:"precision" json:"precision"`
	Allowed    []string     `toml:"allowed" yaml:"allowed" json:"allowed"`
	Extensible bool         `toml:"extensible" yaml:"extensible" json:"extensible"`
	Names      []rawIntName `toml:"names" yaml:"names" json:"names"`
	ElemType   string       `toml:"elem_type" yaml:"elem_type" json:"elem_type"`
}

type rawIntName struct {
	Value int    `toml:"value" yaml:"value" json:"value"`
	Name  string `toml:"name" yaml:"name" json:"name"`
}

// problems collects descriptor validation failures.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) Error() string {
	if len(p) == 1 {
		return p[0]
	}
	return fmt.Sprintf("%d problems:\n  - %s", len(p), strings.Join(p, "\n  - "))
}

// build validates raw and converts it to a Descriptor.
func build(raw *rawDescriptor, name, source string) (*Descriptor, error) {
	var errs problems

	switch {
	case raw.Name == "":
		errs.addf("name is required")
	case raw.Name != name:
		errs.addf("name %q does not match descriptor file name %q", raw.Name, name)
	}

	d := &Descriptor{
		Name:      name,
		ShortDesc: raw.ShortDesc,
		LongDesc:  raw.LongDesc,
		Category:  raw.Category,
		Features:  compact(raw.Features),
		Requires:  compact(raw.Requires),
		Conflicts: compact(raw.Conflicts),
		Source:    source,
	}

	seen := make(map[string]bool, len(raw.Settings))
	groups := make(map[string]bool)
	for i, rs := range raw.Settings {
		label := rs.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if !ValidName(rs.Name) {
			errs.addf("setting %s: invalid name", label)
			continue
		}
		if seen[rs.Name] {
			errs.addf("setting %s: declared more than once", label)
			continue
		}
		seen[rs.Name] = true

		sd, err := buildSetting(rs)
		if err != nil {
			errs.addf("setting %s: %v", label, err)
			continue
		}
		d.Settings = append(d.Settings, sd)
		if sd.Group != "" && !groups[sd.Group] {
			groups[sd.Group] = true
			d.Groups = append(d.Groups, sd.Group)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return d, nil
}

func buildSetting(rs rawSetting) (SettingDesc, error) {
	typ, ok := schema.ParseType(rs.Type)
	if !ok {
		return SettingDesc{}, fmt.Errorf("unknown type %q", rs.Type)
	}

	// Bounds and value lists describe the element of a list.
	constraints := &schema.Schema{
		Min:        rs.Min,
		Max:        rs.Max,
		Precision:  rs.Precision,
		Allowed:    rs.Allowed,
		Extensible: rs.Extensible,
	}
	for _, n := range rs.Names {
		constraints.Names = append(constraints.Names, schema.IntName{Value: n.Value, Name: n.Name})
	}

	s := constraints
	if typ == schema.TypeList {
		elem, ok := schema.ParseType(rs.ElemType)
		if !ok {
			return SettingDesc{}, fmt.Errorf("unknown element type %q", rs.ElemType)
		}
		constraints.Type = elem
		s = schema.ListOf(constraints)
	} else {
		if rs.ElemType != "" {
			return SettingDesc{}, fmt.Errorf("elem_type is only valid for lists")
		}
		constraints.Type = typ
	}
	if err := s.Check(); err != nil {
		return SettingDesc{}, err
	}

	def := s.Zero()
	if rs.Default != nil {
		v, err := s.DecodePath("default", rs.Default)
		if err != nil {
			return SettingDesc{}, err
		}
		def = v
	}

	return SettingDesc{
		Name:       rs.Name,
		ShortDesc:  rs.ShortDesc,
		LongDesc:   rs.LongDesc,
		Group:      rs.Group,
		SubGroup:   rs.SubGroup,
		Hints:      compact(rs.Hints),
		Schema:     s,
		Default:    def,
		ReadOnly:   rs.ReadOnly,
		Integrated: rs.Integrated,
	}, nil
}

// compact trims entries, drops empty ones, and never returns nil.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
