// Package fields loads tag definitions from a YAML fields file and watches
// it for changes.
package fields

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
)

// fieldsFile is the structure of the YAML fields file.
type fieldsFile struct {
	Fields []fieldDefinition `yaml:"fields"`
}

type fieldDefinition struct {
	Name       string                `yaml:"name"`
	Type       labeling.TagType      `yaml:"type"`
	Format     labeling.TagFormat    `yaml:"format,omitempty"`
	Color      string                `yaml:"color,omitempty"`
	RowKeys    []labeling.TableField `yaml:"rowKeys,omitempty"`
	ColumnKeys []labeling.TableField `yaml:"columnKeys,omitempty"`
}

// Load reads and validates the tag definitions in the given fields file.
func Load(path string) ([]labeling.Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fields file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fields file content.
func Parse(data []byte) ([]labeling.Tag, error) {
	var file fieldsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fields file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Fields))
	tags := make([]labeling.Tag, 0, len(file.Fields))
	for _, f := range file.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field definition without a name")
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.Type == "" {
			f.Type = labeling.TagTypeString
		}
		if f.Type == labeling.TagTypeTable {
			if len(f.ColumnKeys) == 0 {
				return nil, fmt.Errorf("table field %q has no column keys", f.Name)
			}
			if f.Format == "" {
				f.Format = labeling.FormatFixed
			}
			if f.Format == labeling.FormatFixed && len(f.RowKeys) == 0 {
				return nil, fmt.Errorf("fixed table field %q has no row keys", f.Name)
			}
		}

		tags = append(tags, labeling.Tag{
			Name:       f.Name,
			Type:       f.Type,
			Format:     f.Format,
			Color:      f.Color,
			RowKeys:    f.RowKeys,
			ColumnKeys: f.ColumnKeys,
		})
	}
	return tags, nil
}
