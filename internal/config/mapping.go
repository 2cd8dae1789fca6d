package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BartekS5/crm-migrate/pkg/models"
)

// LoadMapping reads a mapping file. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON. The result is validated.
func LoadMapping(filePath string) (*models.MappingSchema, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file '%s': %w", filePath, err)
	}

	var schema *models.MappingSchema
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		schema, err = models.LoadMappingYAML(bytes)
	default:
		schema, err = models.LoadMapping(bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}
