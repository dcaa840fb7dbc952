package main

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/dcim-mcp/internal/common"
	"github.com/bobmcallan/dcim-mcp/internal/config"
	"github.com/bobmcallan/dcim-mcp/internal/session"
	"github.com/bobmcallan/dcim-mcp/internal/upstream"
)

// toolRegistration pairs a tool definition with its handler.
type toolRegistration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// toolRegistrations returns every tool served by dcim-mcp, in listing order.
func toolRegistrations(cfg *config.Config, c *upstream.Client, sess *session.Session, logger *common.Logger) []toolRegistration {
	return []toolRegistration{
		{createLoginTool(), handleLogin(c, sess, logger)},
		{createLogoutTool(), handleLogout(sess)},
		{createGetVersionTool(), handleGetVersion(cfg.Server.Name, c, sess)},
		{createGetRackListTool(), handleGetRackList(c)},
		{createGetRackDetailTool(), handleGetRackDetail(c)},
		{createGetPowerConsumptionTool(), handleGetPowerConsumption(c)},
		{createGetPowerLoadTool(), handleGetPowerLoad(c)},
		{createGetProjectListTool(), handleGetProjectList(c)},
		{createGetTicketListTool(), handleGetTicketList(c)},
	}
}

// registerTools adds each tool to the server, wrapped with argument
// validation against its input schema and per-call correlation logging.
func registerTools(s *server.MCPServer, regs []toolRegistration, logger *common.Logger) error {
	for _, reg := range regs {
		validate, err := newArgumentValidator(reg.Tool)
		if err != nil {
			return err
		}
		handler := withCorrelation(logger, reg.Tool.Name, withValidation(reg.Tool.Name, validate, reg.Handler))
		s.AddTool(reg.Tool, handler)
	}
	return nil
}

// --- Tool definitions ---

func createLoginTool() mcp.Tool {
	return mcp.NewTool("login",
		mcp.WithDescription("Authenticate against the DCIM API with email and password. The access token is kept for subsequent tool calls until it expires or logout is called."),
		mcp.WithString("email", mcp.Required(), mcp.Description("Account email address")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Account password")),
	)
}

func createLogoutTool() mcp.Tool {
	return mcp.NewTool("logout",
		mcp.WithDescription("Forget the current access token. Subsequent calls are unauthenticated until login is called again."),
	)
}

func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get-version",
		mcp.WithDescription("Get the DCIM MCP server version, the configured API and whether a login is active. Does not contact the API."),
	)
}

func createGetRackListTool() mcp.Tool {
	return mcp.NewTool("get-rack-list",
		mcp.WithDescription("List racks, optionally filtered by a search term. Results are paginated."),
		mcp.WithNumber("page", mcp.Description("Page number")),
		mcp.WithNumber("page_size", mcp.Description("Number of racks per page")),
		mcp.WithString("search", mcp.Description("Search term matched against rack fields")),
	)
}

func createGetRackDetailTool() mcp.Tool {
	return mcp.NewTool("get-rack-detail",
		mcp.WithDescription("Get full details for a single rack."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Rack ID")),
	)
}

func createGetPowerConsumptionTool() mcp.Tool {
	return mcp.NewTool("get-power-consumption",
		mcp.WithDescription("Get power consumption chart data for a rack over a time range."),
		mcp.WithString("rack_pk", mcp.Required(), mcp.Description("Rack primary key")),
		mcp.WithString("from", mcp.Required(), mcp.Description("Start of the range, ISO 8601 (e.g. '2024-01-01T00:00:00Z')")),
		mcp.WithString("to", mcp.Required(), mcp.Description("End of the range, ISO 8601 (e.g. '2024-01-31T23:59:59Z')")),
	)
}

func createGetPowerLoadTool() mcp.Tool {
	return mcp.NewTool("get-power-load",
		mcp.WithDescription("Get power load chart data for a rack over a time range."),
		mcp.WithString("rack_pk", mcp.Required(), mcp.Description("Rack primary key")),
		mcp.WithString("from", mcp.Required(), mcp.Description("Start of the range, ISO 8601 (e.g. '2024-01-01T00:00:00Z')")),
		mcp.WithString("to", mcp.Required(), mcp.Description("End of the range, ISO 8601 (e.g. '2024-01-31T23:59:59Z')")),
	)
}

func createGetProjectListTool() mcp.Tool {
	return mcp.NewTool("get-project-list",
		mcp.WithDescription("List projects with optional search, ordering and pagination."),
		mcp.WithString("search", mcp.Description("Search term matched against project fields")),
		mcp.WithString("ordering", mcp.Description("Field to order by, prefix with '-' for descending (e.g. '-created_at')")),
		mcp.WithNumber("page", mcp.Description("Page number")),
		mcp.WithNumber("page_size", mcp.Description("Number of projects per page")),
	)
}

func createGetTicketListTool() mcp.Tool {
	return mcp.NewTool("get-ticket-list",
		mcp.WithDescription("List tickets with optional search, status, priority, ordering and pagination."),
		mcp.WithNumber("page", mcp.Description("Page number")),
		mcp.WithNumber("page_size", mcp.Description("Number of tickets per page")),
		mcp.WithString("search", mcp.Description("Search term matched against ticket fields")),
		mcp.WithString("status", mcp.Description("Ticket status filter (e.g. 'open')")),
		mcp.WithString("priority", mcp.Description("Ticket priority filter (e.g. 'high')")),
		mcp.WithString("ordering", mcp.Description("Field to order by, prefix with '-' for descending")),
	)
}
