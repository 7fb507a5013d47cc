package metadata

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/plugreg/internal/config/loader"
)

// format is one supported descriptor encoding.
type format struct {
	ext    string
	decode func(path string, data []byte) (*rawDescriptor, error)
}

// formats lists the descriptor encodings in lookup order.
var formats = []*format{
	{ext: ".toml", decode: decodeTOML},
	{ext: ".yaml", decode: decodeYAML},
	{ext: ".yml", decode: decodeYAML},
	{ext: ".json", decode: decodeJSON},
	{ext: ".hcl", decode: decodeHCL},
}

// Extensions returns the recognised descriptor file extensions in lookup order.
func Extensions() []string {
	exts := make([]string, len(formats))
	for i, f := range formats {
		exts[i] = f.ext
	}
	return exts
}

func decodeTOML(path string, data []byte) (*rawDescriptor, error) {
	var raw rawDescriptor
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		perr := &loader.ParseError{Path: path, Message: err.Error(), Err: err}
		if derr, ok := err.(*toml.DecodeError); ok {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	return &raw, nil
}

func decodeYAML(path string, data []byte) (*rawDescriptor, error) {
	var raw rawDescriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, &loader.ParseError{Path: path, Message: "empty document"}
		}
		return nil, &loader.ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return &raw, nil
}

func decodeJSON(path string, data []byte) (*rawDescriptor, error) {
	var raw rawDescriptor
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, &loader.ParseError{Path: path, Message: err.Error(), Err: err}
	}
	if dec.More() {
		return nil, &loader.ParseError{Path: path, Message: "trailing data after descriptor"}
	}
	return &raw, nil
}
