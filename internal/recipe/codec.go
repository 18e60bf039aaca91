package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects a persistence encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user-supplied name to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown recipe format %q", s)
	}
}

// document is the persisted shape of a recipe.
type document struct {
	Version int    `json:"version" yaml:"version"`
	Steps   []Step `json:"steps" yaml:"steps"`
}

func (r *Recipe) document() document {
	return document{Version: r.version, Steps: r.Steps()}
}

func fromDocument(doc document) (*Recipe, error) {
	if doc.Version != FormatVersion {
		return nil, &VersionError{Got: doc.Version, Want: FormatVersion}
	}
	return New(doc.Steps...)
}

// MarshalJSON implements json.Marshaler.
func (r *Recipe) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.document())
}

// UnmarshalJSON implements json.Unmarshaler with the same checks as ParseJSON.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r *Recipe) MarshalYAML() (interface{}, error) {
	return r.document(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Recipe) UnmarshalYAML(node *yaml.Node) error {
	var doc document
	if err := node.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	parsed, err := fromDocument(doc)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// ParseJSON decodes a JSON recipe. Unknown fields are rejected and the
// version must match FormatVersion exactly.
func ParseJSON(data []byte) (*Recipe, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromDocument(doc)
}

// ParseYAML decodes a YAML recipe with the same rules as ParseJSON.
func ParseYAML(data []byte) (*Recipe, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromDocument(doc)
}

// Marshal encodes r in format.
func Marshal(r *Recipe, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(r)
	case FormatJSON, "":
		return json.MarshalIndent(r, "", "  ")
	default:
		return nil, fmt.Errorf("unknown recipe format %q", format)
	}
}

// Parse decodes data in format.
func Parse(data []byte, format Format) (*Recipe, error) {
	switch format {
	case FormatYAML:
		return ParseYAML(data)
	case FormatJSON, "":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unknown recipe format %q", format)
	}
}

// Read decodes a recipe from rd, sniffing the format: a document starting
// with '{' is JSON, anything else YAML.
func Read(rd io.Reader) (*Recipe, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}
