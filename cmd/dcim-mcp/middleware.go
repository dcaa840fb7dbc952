package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bobmcallan/dcim-mcp/internal/common"
)

// argumentValidator checks tool-call arguments against a compiled schema.
type argumentValidator func(args map[string]interface{}) error

// newArgumentValidator compiles the tool's declared input schema.
func newArgumentValidator(tool mcp.Tool) (argumentValidator, error) {
	schemaBytes, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", tool.Name, err)
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal %s schema: %w", tool.Name, err)
	}

	c := jsonschema.NewCompiler()
	resource := tool.Name + ".json"
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return nil, fmt.Errorf("add %s schema resource: %w", tool.Name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", tool.Name, err)
	}

	return func(args map[string]interface{}) error {
		if args == nil {
			args = map[string]interface{}{}
		}
		return schema.Validate(args)
	}, nil
}

// withValidation rejects calls whose arguments do not match the schema
// before the handler runs.
func withValidation(name string, validate argumentValidator, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := validate(request.GetArguments()); err != nil {
			return errorResult(fmt.Sprintf("Invalid arguments for %s: %v", name, err)), nil
		}
		return next(ctx, request)
	}
}

// withCorrelation tags the call with a correlation ID and logs its outcome.
func withCorrelation(logger *common.Logger, name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := common.NewCorrelationID()
		ctx = common.WithCorrelationID(ctx, id)
		l := logger.WithCorrelationId(id)

		start := time.Now()
		l.Debug().Str("tool", name).Msg("Tool call start")

		result, err := next(ctx, request)

		isError := err != nil || (result != nil && result.IsError)
		l.Info().
			Str("tool", name).
			Dur("duration", time.Since(start)).
			Bool("is_error", isError).
			Msg("Tool call complete")
		return result, err
	}
}
