package metadata

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclDescriptorFile is the top-level structure of an HCL descriptor:
//
//	plugin "mock" {
//	  short_desc = "Mock"
//	  setting "mock" {
//	    type    = "string"
//	    default = "Mock Value"
//	  }
//	}
type hclDescriptorFile struct {
	Plugins []*hclPlugin `hcl:"plugin,block"`
}

type hclPlugin struct {
	Name      string        `hcl:"name,label"`
	ShortDesc string        `hcl:"short_desc,optional"`
	LongDesc  string        `hcl:"long_desc,optional"`
	Category  string        `hcl:"category,optional"`
	Features  []string      `hcl:"features,optional"`
	Requires  []string      `hcl:"requires,optional"`
	Conflicts []string      `hcl:"conflicts,optional"`
	Settings  []*hclSetting `hcl:"setting,block"`
}

type hclSetting struct {
	Name       string         `hcl:"name,label"`
	Type       string         `hcl:"type"`
	ShortDesc  string         `hcl:"short_desc,optional"`
	LongDesc   string         `hcl:"long_desc,optional"`
	Group      string         `hcl:"group,optional"`
	SubGroup   string         `hcl:"subgroup,optional"`
	Hints      []string       `hcl:"hints,optional"`
	Default    hcl.Expression `hcl:"default,optional"`
	ReadOnly   bool           `hcl:"read_only,optional"`
	Integrated bool           `hcl:"integrated,optional"`
	Min        *float64       `hcl:"min,optional"`
	Max        *float64       `hcl:"max,optional"`
	Precision  float64        `hcl:"precision,optional"`
	Allowed    []string       `hcl:"allowed,optional"`
	Extensible bool           `hcl:"extensible,optional"`
	ElemType   string         `hcl:"elem_type,optional"`
	Options    []*hclOption   `hcl:"option,block"`
}

// hclOption names one value of an int setting: option "Never" { value = 0 }.
type hclOption struct {
	Name  string `hcl:"name,label"`
	Value int    `hcl:"value"`
}

func decodeHCL(path string, data []byte) (*rawDescriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclDescriptorFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if len(parsed.Plugins) != 1 {
		return nil, fmt.Errorf("%s: expected exactly one plugin block, found %d", path, len(parsed.Plugins))
	}

	p := parsed.Plugins[0]
	raw := &rawDescriptor{
		Name:      p.Name,
		ShortDesc: p.ShortDesc,
		LongDesc:  p.LongDesc,
		Category:  p.Category,
		Features:  p.Features,
		Requires:  p.Requires,
		Conflicts: p.Conflicts,
	}
	for _, s := range p.Settings {
		def, err := evalDefault(s.Default)
		if err != nil {
			return nil, fmt.Errorf("%s: setting %s: %w", path, s.Name, err)
		}
		rs := rawSetting{
			Name:       s.Name,
			Type:       s.Type,
			ShortDesc:  s.ShortDesc,
			LongDesc:   s.LongDesc,
			Group:      s.Group,
			SubGroup:   s.SubGroup,
			Hints:      s.Hints,
			Default:    def,
			ReadOnly:   s.ReadOnly,
			Integrated: s.Integrated,
			Min:        s.Min,
			Max:        s.Max,
			Precision:  s.Precision,
			Allowed:    s.Allowed,
			Extensible: s.Extensible,
			ElemType:   s.ElemType,
		}
		for _, o := range s.Options {
			rs.Names = append(rs.Names, rawIntName{Value: o.Value, Name: o.Name})
		}
		raw.Settings = append(raw.Settings, rs)
	}
	return raw, nil
}

// evalDefault evaluates a default expression without variables or functions.
func evalDefault(expr hcl.Expression) (any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	return ctyToGo(val)
}

// ctyToGo converts a known cty value into plain Go values: string, bool,
// int64 or float64, []any and map[string]any.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if n, acc := bf.Int64(); acc == 0 {
				return n, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType(), ty.IsTupleType(), ty.IsSetType():
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			v, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case ty.IsMapType(), ty.IsObjectType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, elem := it.Element()
			v, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
