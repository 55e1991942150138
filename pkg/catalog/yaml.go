package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

// yamlFile is the on-disk layout:
//
//	models:
//	  - model_id: 312
//	    model_name: sale.order
//	    fields:
//	      - field_id: 5012
//	        field_name: partner_id
//	        field_type: many_to_one
//	        stored: true
//	        target_model: res.partner
type yamlFile struct {
	Models []yamlModel `yaml:"models"`
}

type yamlModel struct {
	ModelID   int64                    `yaml:"model_id"`
	ModelName string                   `yaml:"model_name"`
	Fields    []models.FieldDescriptor `yaml:"fields"`
}

// YAMLCatalog is a static catalog loaded from a YAML file.
type YAMLCatalog struct {
	models map[string]models.ModelDescriptor
	fields map[string][]models.FieldDescriptor
}

var _ Catalog = (*YAMLCatalog)(nil)

// LoadYAML reads a catalog file.
func LoadYAML(path string) (*YAMLCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseYAML(data)
}

// ParseYAML builds a catalog from YAML bytes. Each field inherits its
// model's id and name, and target_model_id is resolved from target_model
// when the file leaves it out.
func ParseYAML(data []byte) (*YAMLCatalog, error) {
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &YAMLCatalog{
		models: make(map[string]models.ModelDescriptor, len(file.Models)),
		fields: make(map[string][]models.FieldDescriptor, len(file.Models)),
	}
	seenFields := make(map[int64]string)

	for _, m := range file.Models {
		if m.ModelName == "" {
			return nil, apperrors.InvalidArgument("catalog model %d has no name", m.ModelID)
		}
		if _, dup := c.models[m.ModelName]; dup {
			return nil, apperrors.InvalidArgument("catalog model %q is listed twice", m.ModelName)
		}
		c.models[m.ModelName] = models.ModelDescriptor{ModelID: m.ModelID, ModelName: m.ModelName}
	}

	for _, m := range file.Models {
		fields := make([]models.FieldDescriptor, 0, len(m.Fields))
		for _, f := range m.Fields {
			if owner, dup := seenFields[f.FieldID]; dup {
				return nil, apperrors.InvalidArgument("field_id %d used by both %s and %s", f.FieldID, owner, m.ModelName)
			}
			seenFields[f.FieldID] = m.ModelName

			f.ModelID = m.ModelID
			f.ModelName = m.ModelName
			f.FieldType = models.ParseFieldType(string(f.FieldType))
			if f.TargetModel != "" && f.TargetModelID == 0 {
				if target, ok := c.models[f.TargetModel]; ok {
					f.TargetModelID = target.ModelID
				}
			}
			fields = append(fields, f)
		}
		c.fields[m.ModelName] = fields
	}

	return c, nil
}

func (c *YAMLCatalog) GetFields(_ context.Context, modelName string) ([]models.FieldDescriptor, error) {
	fields := c.fields[modelName]
	out := make([]models.FieldDescriptor, len(fields))
	copy(out, fields)
	return out, nil
}

func (c *YAMLCatalog) GetModel(_ context.Context, modelName string) (*models.ModelDescriptor, error) {
	m, ok := c.models[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownModel, modelName)
	}
	return &m, nil
}

func (c *YAMLCatalog) ListModels(_ context.Context) ([]models.ModelDescriptor, error) {
	out := make([]models.ModelDescriptor, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelName < out[j].ModelName })
	return out, nil
}
