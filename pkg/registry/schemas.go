package registry

import (
	"fmt"
	"strings"

	"github.com/campushq/flowline/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateNodeConfig checks a node's config against its kind's schema.
// Kinds without a schema accept any config.
func (r *Registry) ValidateNodeConfig(node *models.WorkflowNode) error {
	factory, ok := r.Factory(node.Kind)
	if !ok {
		return fmt.Errorf("node kind '%s' not registered", node.Kind)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(node.Config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config for node %s: %w", node.ID, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}

		return fmt.Errorf("invalid config for node %s: %s", node.ID, strings.Join(details, "; "))
	}

	return nil
}
