// Package template renders node configuration strings against the execution
// context, so node configs can reference trigger fields and prior node
// outputs as {{.nodes.fetch_learners.rows}} or {{.trigger.batchId}}.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/campushq/flowline/pkg/models"
)

// RenderWithContext renders the input against an execution context.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	return Render(input, templateData(executionCtx))
}

// templateData exposes the context the same way Lookup resolves it: trigger
// fields, variables and node outputs are all addressable at the top level,
// with trigger fields winning name collisions. The reserved namespaces stay
// available for explicit references.
func templateData(executionCtx *models.ExecutionContext) map[string]any {
	size := len(executionCtx.TriggerData) + len(executionCtx.Variables) + len(executionCtx.NodeOutputs) + 4
	data := make(map[string]any, size)

	for k, v := range executionCtx.NodeOutputs {
		data[k] = v
	}

	for k, v := range executionCtx.Variables {
		data[k] = v
	}

	for k, v := range executionCtx.TriggerData {
		data[k] = v
	}

	data["trigger"] = executionCtx.TriggerData
	data["vars"] = executionCtx.Variables
	data["nodes"] = executionCtx.NodeOutputs
	data["execution"] = map[string]any{
		"id":          executionCtx.ID,
		"workflow_id": executionCtx.WorkflowID,
	}

	return data
}

// Render executes the template and coerces the result: JSON-looking output
// is parsed, then numbers, then booleans, otherwise the raw string.
func Render(templateStr string, data any) (any, error) {
	result, err := execute(templateStr, data)
	if err != nil {
		return nil, err
	}

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func execute(templateStr string, data any) (string, error) {
	tmpl, err := Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// Parse compiles a template without executing it, for config validation.
func Parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("node_config").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// RenderString renders for callers that need the literal rendered text,
// e.g. message subjects and recipient addresses. No coercion is applied;
// a phone number like "+5511999990000" comes back byte for byte.
func RenderString(input string, executionCtx *models.ExecutionContext) (string, error) {
	return execute(input, templateData(executionCtx))
}
