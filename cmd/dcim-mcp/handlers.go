package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/dcim-mcp/internal/common"
	"github.com/bobmcallan/dcim-mcp/internal/config"
	"github.com/bobmcallan/dcim-mcp/internal/session"
	"github.com/bobmcallan/dcim-mcp/internal/upstream"
)

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// jsonResult pretty-prints the upstream body with two-space indentation.
// json.Indent keeps keys in the order the API sent them.
func jsonResult(body json.RawMessage) *mcp.CallToolResult {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return textResult(string(body))
	}
	return textResult(buf.String())
}

func getString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

func getInt(request mcp.CallToolRequest, key string) int {
	return request.GetInt(key, 0)
}

func requireString(request mcp.CallToolRequest, key string) (string, error) {
	return request.RequireString(key)
}

// fetch performs a GET and converts any failure into the tool's failure text.
// Failure detail stays in the diagnostics log.
func fetch(ctx context.Context, c *upstream.Client, endpoint, failure string) *mcp.CallToolResult {
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return errorResult(failure)
	}
	return jsonResult(body)
}

// --- Handlers ---

func handleLogin(c *upstream.Client, sess *session.Session, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		email, err := requireString(request, "email")
		if err != nil || email == "" {
			return errorResult("Error: email parameter is required"), nil
		}
		password, err := requireString(request, "password")
		if err != nil || password == "" {
			return errorResult("Error: password parameter is required"), nil
		}

		l := logger.ForContext(ctx)
		token, err := c.Login(ctx, email, password)
		if err != nil {
			l.Warn().Err(err).Str("kind", upstream.KindOf(err).String()).Msg("Login failed")
			if upstream.KindOf(err) == upstream.KindStatus {
				return errorResult("Authentication failed. Please check your credentials."), nil
			}
			return errorResult(fmt.Sprintf("Error during authentication: %v", err)), nil
		}

		if err := sess.SetToken(ctx, token); err != nil {
			l.Warn().Err(err).Msg("Failed to persist access token")
		}
		if exp := sess.ExpiresAt(); !exp.IsZero() {
			l.Info().Str("expires_at", exp.Format(time.RFC3339)).Msg("Authenticated")
		} else {
			l.Info().Msg("Authenticated")
		}
		return textResult("Successfully authenticated!"), nil
	}
}

func handleLogout(sess *session.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !sess.Clear(ctx) {
			return textResult("Not authenticated."), nil
		}
		return textResult("Logged out."), nil
	}
}

func handleGetVersion(name string, c *upstream.Client, sess *session.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", name)
		fmt.Fprintf(&b, "Version: %s\n", config.GetVersion())
		fmt.Fprintf(&b, "Build: %s\n", config.GetBuild())
		fmt.Fprintf(&b, "Commit: %s\n", config.GetGitCommit())
		fmt.Fprintf(&b, "API: %s\n", c.BaseURL())
		if sess.Authenticated() {
			b.WriteString("Authenticated: yes")
			if exp := sess.ExpiresAt(); !exp.IsZero() {
				fmt.Fprintf(&b, " (token expires %s)", exp.UTC().Format(time.RFC3339))
			}
		} else {
			b.WriteString("Authenticated: no")
		}
		return textResult(b.String()), nil
	}
}

func handleGetRackList(c *upstream.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := upstream.NewQuery().
			Int("page", getInt(request, "page")).
			Int("page_size", getInt(request, "page_size")).
			String("search", getString(request, "search"))

		return fetch(ctx, c, upstream.Endpoint("/additionalservices/racklist", q), "Failed to retrieve rack list"), nil
	}
}

func handleGetRackDetail(c *upstream.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireString(request, "id")
		if err != nil || id == "" {
			return errorResult("Error: id parameter is required"), nil
		}

		endpoint := "/additionalservices/rackdetail/" + upstream.Segment(id)
		return fetch(ctx, c, endpoint, fmt.Sprintf("Failed to retrieve details for rack %s", id)), nil
	}
}

// rackSeries handles the per-rack time-series tools. from and to are
// forwarded as given; the API is responsible for rejecting bad dates.
func rackSeries(c *upstream.Client, chart, label string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rackPK, err := requireString(request, "rack_pk")
		if err != nil || rackPK == "" {
			return errorResult("Error: rack_pk parameter is required"), nil
		}
		from, err := requireString(request, "from")
		if err != nil || from == "" {
			return errorResult("Error: from parameter is required"), nil
		}
		to, err := requireString(request, "to")
		if err != nil || to == "" {
			return errorResult("Error: to parameter is required"), nil
		}

		q := upstream.NewQuery().String("from", from).String("to", to)
		endpoint := upstream.Endpoint("/additionalservices/"+upstream.Segment(rackPK)+"/"+chart, q)
		return fetch(ctx, c, endpoint, fmt.Sprintf("Failed to retrieve %s data for rack %s", label, rackPK)), nil
	}
}

func handleGetPowerConsumption(c *upstream.Client) server.ToolHandlerFunc {
	return rackSeries(c, "chartpowerconsumption", "power consumption")
}

func handleGetPowerLoad(c *upstream.Client) server.ToolHandlerFunc {
	return rackSeries(c, "chartpowerload", "power load")
}

func handleGetProjectList(c *upstream.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := upstream.NewQuery().
			String("search", getString(request, "search")).
			String("ordering", getString(request, "ordering")).
			Int("page", getInt(request, "page")).
			Int("page_size", getInt(request, "page_size"))

		return fetch(ctx, c, upstream.Endpoint("/additionalservices/projectlist", q), "Failed to retrieve project list"), nil
	}
}

func handleGetTicketList(c *upstream.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := upstream.NewQuery().
			Int("page", getInt(request, "page")).
			Int("page_size", getInt(request, "page_size")).
			String("search", getString(request, "search")).
			String("status", getString(request, "status")).
			String("priority", getString(request, "priority")).
			String("ordering", getString(request, "ordering"))

		return fetch(ctx, c, upstream.Endpoint("/ticket/", q), "Failed to retrieve ticket list"), nil
	}
}
