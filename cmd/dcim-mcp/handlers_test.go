package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/dcim-mcp/internal/common"
	"github.com/bobmcallan/dcim-mcp/internal/config"
	"github.com/bobmcallan/dcim-mcp/internal/session"
	"github.com/bobmcallan/dcim-mcp/internal/upstream"
)

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

func newTestClient(serverURL string) (*upstream.Client, *session.Session) {
	logger := testLogger()
	sess := session.New(nil, logger)
	return upstream.NewClient(config.APIConfig{BaseURL: serverURL, Timeout: "5s"}, sess, logger), sess
}

func callHandler(t *testing.T, handler server.ToolHandlerFunc, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args

	result, err := handler(context.Background(), request)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result == nil || len(result.Content) != 1 {
		t.Fatalf("Expected exactly one content block, got %+v", result)
	}
	return result
}

func resultText(result *mcp.CallToolResult) string {
	return result.Content[0].(mcp.TextContent).Text
}

// recordingServer answers every request with status/body and records the
// request URI and Authorization header of the last call.
type recordingServer struct {
	*httptest.Server
	lastURI  string
	lastAuth string
}

func newRecordingServer(t *testing.T, status int, body string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.lastURI = r.URL.RequestURI()
		rs.lastAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func TestJSONResult_PreservesOrderAndIndents(t *testing.T) {
	result := jsonResult(json.RawMessage(`{"zeta":1,"alpha":{"b":[1,2],"a":null}}`))
	expected := "{\n  \"zeta\": 1,\n  \"alpha\": {\n    \"b\": [\n      1,\n      2\n    ],\n    \"a\": null\n  }\n}"
	if got := resultText(result); got != expected {
		t.Errorf("Expected:\n%s\nGot:\n%s", expected, got)
	}
	if result.IsError {
		t.Error("jsonResult should not be an error result")
	}
}

func TestHandleGetRackList_QueryOmission(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"no args", nil, "/additionalservices/racklist"},
		{"only search", map[string]interface{}{"search": "x"}, "/additionalservices/racklist?search=x"},
		{"all", map[string]interface{}{"page": float64(2), "page_size": float64(25), "search": "r1"},
			"/additionalservices/racklist?page=2&page_size=25&search=r1"},
		{"zero page omitted", map[string]interface{}{"page": float64(0), "page_size": float64(10)},
			"/additionalservices/racklist?page_size=10"},
		{"empty search omitted", map[string]interface{}{"search": ""}, "/additionalservices/racklist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := newRecordingServer(t, http.StatusOK, `{"results":[]}`)
			client, _ := newTestClient(rs.URL)

			result := callHandler(t, handleGetRackList(client), tt.args)
			if result.IsError {
				t.Fatalf("Expected success, got %s", resultText(result))
			}
			if rs.lastURI != tt.want {
				t.Errorf("Expected request %s, got %s", tt.want, rs.lastURI)
			}
		})
	}
}

func TestHandleGetRackList_Failure(t *testing.T) {
	rs := newRecordingServer(t, http.StatusInternalServerError, `{"detail":"boom"}`)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetRackList(client), nil)
	if !result.IsError {
		t.Error("Expected error result")
	}
	if got := resultText(result); got != "Failed to retrieve rack list" {
		t.Errorf("Unexpected failure text %q", got)
	}
}

func TestHandleGetRackDetail(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{"id":42,"name":"R-42","power":{"kw":3.2}}`)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetRackDetail(client), map[string]interface{}{"id": "42"})
	if result.IsError {
		t.Fatalf("Expected success, got %s", resultText(result))
	}
	if rs.lastURI != "/additionalservices/rackdetail/42" {
		t.Errorf("Unexpected request %s", rs.lastURI)
	}
	expected := "{\n  \"id\": 42,\n  \"name\": \"R-42\",\n  \"power\": {\n    \"kw\": 3.2\n  }\n}"
	if got := resultText(result); got != expected {
		t.Errorf("Expected pretty-printed passthrough:\n%s\nGot:\n%s", expected, got)
	}
}

func TestHandleGetRackDetail_NotFound(t *testing.T) {
	rs := newRecordingServer(t, http.StatusNotFound, `{"detail":"Not found."}`)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetRackDetail(client), map[string]interface{}{"id": "42"})
	if got := resultText(result); got != "Failed to retrieve details for rack 42" {
		t.Errorf("Unexpected failure text %q", got)
	}
	if strings.Contains(resultText(result), "Not found.") {
		t.Error("Upstream error detail must not reach the caller")
	}
}

func TestHandleGetRackDetail_MissingID(t *testing.T) {
	client, _ := newTestClient("http://localhost:1")

	result := callHandler(t, handleGetRackDetail(client), map[string]interface{}{})
	if !result.IsError {
		t.Error("Expected error result for missing id")
	}
	if !strings.Contains(resultText(result), "id parameter is required") {
		t.Errorf("Unexpected text %q", resultText(result))
	}
}

func TestHandleGetPowerConsumption(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{"series":[{"t":"2024-01-01","kwh":12.5}]}`)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetPowerConsumption(client), map[string]interface{}{
		"rack_pk": "7",
		"from":    "2024-01-01",
		"to":      "2024-01-31",
	})
	if result.IsError {
		t.Fatalf("Expected success, got %s", resultText(result))
	}
	if rs.lastURI != "/additionalservices/7/chartpowerconsumption?from=2024-01-01&to=2024-01-31" {
		t.Errorf("Unexpected request %s", rs.lastURI)
	}
}

func TestHandleGetPowerConsumption_MalformedDateForwarded(t *testing.T) {
	rs := newRecordingServer(t, http.StatusBadRequest, `{"from":["Enter a valid date/time."]}`)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetPowerConsumption(client), map[string]interface{}{
		"rack_pk": "7",
		"from":    "yesterday",
		"to":      "today",
	})
	if rs.lastURI != "/additionalservices/7/chartpowerconsumption?from=yesterday&to=today" {
		t.Errorf("Dates should be forwarded verbatim, got %s", rs.lastURI)
	}
	if got := resultText(result); got != "Failed to retrieve power consumption data for rack 7" {
		t.Errorf("Unexpected failure text %q", got)
	}
}

func TestHandleGetPowerLoad(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `[]`)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetPowerLoad(client), map[string]interface{}{
		"rack_pk": "9",
		"from":    "2024-02-01T00:00:00Z",
		"to":      "2024-02-02T00:00:00Z",
	})
	if result.IsError {
		t.Fatalf("Expected success, got %s", resultText(result))
	}
	if !strings.HasPrefix(rs.lastURI, "/additionalservices/9/chartpowerload?from=") {
		t.Errorf("Unexpected request %s", rs.lastURI)
	}
	if resultText(result) != "[]" {
		t.Errorf("Expected [] passthrough, got %q", resultText(result))
	}
}

func TestHandleGetPowerLoad_Failure(t *testing.T) {
	rs := newRecordingServer(t, http.StatusBadGateway, ``)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetPowerLoad(client), map[string]interface{}{
		"rack_pk": "9",
		"from":    "2024-02-01",
		"to":      "2024-02-02",
	})
	if got := resultText(result); got != "Failed to retrieve power load data for rack 9" {
		t.Errorf("Unexpected failure text %q", got)
	}
}

func TestHandleGetPowerLoad_MissingRange(t *testing.T) {
	client, _ := newTestClient("http://localhost:1")

	result := callHandler(t, handleGetPowerLoad(client), map[string]interface{}{"rack_pk": "9", "from": "2024-02-01"})
	if !result.IsError || !strings.Contains(resultText(result), "to parameter is required") {
		t.Errorf("Expected missing 'to' error, got %q", resultText(result))
	}
}

func TestHandleGetProjectList(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{"results":[]}`)
	client, _ := newTestClient(rs.URL)

	callHandler(t, handleGetProjectList(client), map[string]interface{}{
		"page":     float64(3),
		"ordering": "-name",
		"search":   "colo",
	})
	if rs.lastURI != "/additionalservices/projectlist?search=colo&ordering=-name&page=3" {
		t.Errorf("Unexpected request %s", rs.lastURI)
	}
}

func TestHandleGetProjectList_Failure(t *testing.T) {
	client, _ := newTestClient("http://localhost:1")

	result := callHandler(t, handleGetProjectList(client), nil)
	if got := resultText(result); got != "Failed to retrieve project list" {
		t.Errorf("Unexpected failure text %q", got)
	}
}

func TestHandleGetTicketList_StatusAndPriority(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{"count":0,"results":[]}`)
	client, _ := newTestClient(rs.URL)

	callHandler(t, handleGetTicketList(client), map[string]interface{}{
		"status":   "open",
		"priority": "high",
	})
	if rs.lastURI != "/ticket/?status=open&priority=high" {
		t.Errorf("Expected /ticket/?status=open&priority=high, got %s", rs.lastURI)
	}
}

func TestHandleGetTicketList_AllParamsInOrder(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{}`)
	client, _ := newTestClient(rs.URL)

	callHandler(t, handleGetTicketList(client), map[string]interface{}{
		"ordering":  "-created",
		"priority":  "low",
		"status":    "closed",
		"search":    "pdu",
		"page_size": float64(5),
		"page":      float64(1),
	})
	want := "/ticket/?page=1&page_size=5&search=pdu&status=closed&priority=low&ordering=-created"
	if rs.lastURI != want {
		t.Errorf("Expected %s, got %s", want, rs.lastURI)
	}
}

func TestHandleGetTicketList_Failure(t *testing.T) {
	rs := newRecordingServer(t, http.StatusForbidden, `{}`)
	client, _ := newTestClient(rs.URL)

	result := callHandler(t, handleGetTicketList(client), nil)
	if got := resultText(result); got != "Failed to retrieve ticket list" {
		t.Errorf("Unexpected failure text %q", got)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{"data":{"access_token":"abc"}}`)
	client, sess := newTestClient(rs.URL)

	result := callHandler(t, handleLogin(client, sess, testLogger()), map[string]interface{}{
		"email":    "ops@example.com",
		"password": "secret",
	})
	if got := resultText(result); got != "Successfully authenticated!" {
		t.Errorf("Unexpected text %q", got)
	}
	if tok, _ := sess.Token(); tok != "abc" {
		t.Errorf("Expected token abc stored, got %q", tok)
	}
	if rs.lastURI != "/users/auth/login" {
		t.Errorf("Unexpected request %s", rs.lastURI)
	}
}

func TestHandleLogin_Rejected(t *testing.T) {
	rs := newRecordingServer(t, http.StatusBadRequest, `{"detail":"No active account found"}`)
	client, sess := newTestClient(rs.URL)

	result := callHandler(t, handleLogin(client, sess, testLogger()), map[string]interface{}{
		"email":    "ops@example.com",
		"password": "wrong",
	})
	if got := resultText(result); got != "Authentication failed. Please check your credentials." {
		t.Errorf("Unexpected text %q", got)
	}
	if sess.Authenticated() {
		t.Error("Rejected login must not store a token")
	}
}

func TestHandleLogin_NetworkError(t *testing.T) {
	client, sess := newTestClient("http://localhost:1")

	result := callHandler(t, handleLogin(client, sess, testLogger()), map[string]interface{}{
		"email":    "ops@example.com",
		"password": "secret",
	})
	if !strings.HasPrefix(resultText(result), "Error during authentication: ") {
		t.Errorf("Unexpected text %q", resultText(result))
	}
}

func TestHandleLogin_MissingPassword(t *testing.T) {
	client, sess := newTestClient("http://localhost:1")

	result := callHandler(t, handleLogin(client, sess, testLogger()), map[string]interface{}{"email": "ops@example.com"})
	if !result.IsError || !strings.Contains(resultText(result), "password parameter is required") {
		t.Errorf("Unexpected text %q", resultText(result))
	}
}

func TestHandleLogout(t *testing.T) {
	_, sess := newTestClient("http://localhost:1")
	handler := handleLogout(sess)

	if got := resultText(callHandler(t, handler, nil)); got != "Not authenticated." {
		t.Errorf("Unexpected text %q", got)
	}

	sess.SetToken(context.Background(), "abc")
	if got := resultText(callHandler(t, handler, nil)); got != "Logged out." {
		t.Errorf("Unexpected text %q", got)
	}
	if sess.Authenticated() {
		t.Error("Token should be cleared after logout")
	}
}

func TestHandleGetVersion(t *testing.T) {
	client, sess := newTestClient("http://dcim.example.com/")
	handler := handleGetVersion("DCIM-MCP", client, sess)

	text := resultText(callHandler(t, handler, nil))
	for _, want := range []string{"DCIM-MCP", "Version: " + config.GetVersion(), "API: http://dcim.example.com", "Authenticated: no"} {
		if !strings.Contains(text, want) {
			t.Errorf("Version output missing %q:\n%s", want, text)
		}
	}

	sess.SetToken(context.Background(), "abc")
	text = resultText(callHandler(t, handler, nil))
	if !strings.Contains(text, "Authenticated: yes") {
		t.Errorf("Expected authenticated status, got:\n%s", text)
	}
	if strings.Contains(text, "abc") {
		t.Error("Version output must not reveal the token")
	}
}
