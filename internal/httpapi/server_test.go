package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/azchat/internal/chat"
	"github.com/antoniostano/azchat/internal/completion"
	"github.com/antoniostano/azchat/internal/config"
	"github.com/antoniostano/azchat/internal/conversation"
	"github.com/antoniostano/azchat/internal/observability"
	"github.com/antoniostano/azchat/internal/policy"
)

var testMetrics = observability.NewMetrics("test_httpapi")

type stubGateway struct {
	reply string
	err   error
}

func (g stubGateway) Complete(context.Context, []conversation.Turn, completion.Params) (conversation.Turn, error) {
	if g.err != nil {
		return conversation.Turn{}, g.err
	}
	return conversation.Turn{Role: conversation.RoleAssistant, Content: g.reply}, nil
}

func newTestServer(t *testing.T, cfg config.Config, gw completion.Gateway) (*httptest.Server, *chat.Service) {
	t.Helper()
	svc := chat.New(chat.Options{
		Gateway:    gw,
		Redactor:   policy.NewRedactor(true),
		Params:     completion.DefaultParams(),
		Configured: cfg.AzureConfigured(),
		Logger:     zerolog.Nop(),
	})
	ts := httptest.NewServer(New(cfg, svc, testMetrics, zerolog.Nop()).Router())
	t.Cleanup(ts.Close)
	return ts, svc
}

func postJSON(t *testing.T, url, body string) (int, string) {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, strings.TrimSpace(string(raw))
}

func TestHome(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{}, stubGateway{})

	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Azure AI Chatbot Backend is running!", string(body))
}

func TestHealthReportsConfiguration(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{config.PlaceholderAPIKey, false},
		{"", false},
		{"real-key", true},
	}
	for _, tc := range cases {
		ts, _ := newTestServer(t, config.Config{AzureAPIKey: tc.key}, stubGateway{})
		res, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "healthy", payload["status"])
		assert.Equal(t, tc.want, payload["azure_openai_configured"], "key %q", tc.key)
	}
}

func TestChatMissingMessage(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{}, stubGateway{reply: "unused"})

	for _, body := range []string{`{}`, ``, `not json`, `{"msg":"hi"}`, `{"message":""}`} {
		status, raw := postJSON(t, ts.URL+"/chat", body)
		assert.Equal(t, http.StatusBadRequest, status, "body %q", body)
		assert.JSONEq(t, `{"error":"No message provided"}`, raw, "body %q", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var req chatRequest
	empty := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(""))
	assert.ErrorIs(t, decodeJSON(empty, &req), errEmptyBody)

	truncated := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi`))
	err := decodeJSON(truncated, &req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errEmptyBody)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	ok := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, decodeJSON(ok, &req))
	require.NotNil(t, req.Message)
	assert.Equal(t, "hi", *req.Message)
}

func TestChatScenario(t *testing.T) {
	ts, svc := newTestServer(t, config.Config{}, stubGateway{reply: "hello"})

	status, raw := postJSON(t, ts.URL+"/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"response":"hello"}`, raw)

	assert.Equal(t, []conversation.Turn{
		{Role: conversation.RoleSystem, Content: conversation.DefaultSystemPrompt},
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	}, svc.Store().Snapshot("127.0.0.1"))
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"auth", completion.ErrAuth, http.StatusUnauthorized, `{"error":"Authentication failed. Please check your Azure OpenAI credentials."}`},
		{"rate limited", completion.ErrRateLimited, http.StatusTooManyRequests, `{"error":"Rate limit exceeded. Please try again later."}`},
		{"upstream", &completion.UpstreamError{StatusCode: 400, Detail: "bad prompt"}, http.StatusInternalServerError, `{"error":"API error: status 400: bad prompt"}`},
		{"transport", &completion.TransportError{Err: errors.New("dial tcp: refused")}, http.StatusInternalServerError, `{"error":"API error: completion transport: dial tcp: refused"}`},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, `{"error":"An unexpected error occurred. Please try again."}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, _ := newTestServer(t, config.Config{}, stubGateway{err: tc.err})
			status, raw := postJSON(t, ts.URL+"/chat", `{"message":"hi"}`)
			assert.Equal(t, tc.status, status)
			assert.JSONEq(t, tc.body, raw)
		})
	}
}

func TestClear(t *testing.T) {
	ts, svc := newTestServer(t, config.Config{}, stubGateway{reply: "hello"})

	status, _ := postJSON(t, ts.URL+"/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, svc.Store().Count())

	status, raw := postJSON(t, ts.URL+"/clear", ``)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Conversation cleared successfully"}`, raw)
	assert.Equal(t, 0, svc.Store().Count())

	// Clearing again is not an error.
	status, _ = postJSON(t, ts.URL+"/clear", ``)
	assert.Equal(t, http.StatusOK, status)
}

func TestClientIDFromProxyHeaders(t *testing.T) {
	ts, svc := newTestServer(t, config.Config{TrustProxyHeaders: true}, stubGateway{reply: "ok"})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/chat", bytes.NewReader([]byte(`{"message":"hi"}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, 3, svc.Store().Len("1.2.3.4"))
	assert.Equal(t, 0, svc.Store().Len("127.0.0.1"))
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{}, stubGateway{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}

type panicService struct{}

func (panicService) Send(context.Context, string, string) (string, error) { panic("kaboom") }
func (panicService) Clear(context.Context, string) error                  { return nil }
func (panicService) Configured() bool                                     { return false }

func TestPanicBecomesJSON500(t *testing.T) {
	ts := httptest.NewServer(New(config.Config{}, panicService{}, testMetrics, zerolog.Nop()).Router())
	defer ts.Close()

	status, raw := postJSON(t, ts.URL+"/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"An unexpected error occurred. Please try again."}`, raw)
}

func TestPerfLatency(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{}, stubGateway{reply: "ok"})
	status, _ := postJSON(t, ts.URL+"/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, status)

	res, err := http.Get(ts.URL + "/perf/latency")
	require.NoError(t, err)
	defer res.Body.Close()
	var snap observability.LatencySnapshot
	require.NoError(t, json.NewDecoder(res.Body).Decode(&snap))
	assert.NotEmpty(t, snap.Stages)
}

func TestWebSocketChat(t *testing.T) {
	ts, svc := newTestServer(t, config.Config{}, stubGateway{reply: "hello"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat_message", "message": "hi"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "chat_response", reply["type"])
	assert.Equal(t, "hello", reply["response"])
	assert.Equal(t, 3, svc.Store().Len("127.0.0.1"))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat_message"}))
	var errFrame map[string]any
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "error_event", errFrame["type"])
	assert.Equal(t, float64(http.StatusBadRequest), errFrame["status"])
	assert.Equal(t, "No message provided", errFrame["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "clear"}))
	var cleared map[string]any
	require.NoError(t, conn.ReadJSON(&cleared))
	assert.Equal(t, "cleared", cleared["type"])
	assert.Equal(t, 0, svc.Store().Count())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wat"}`)))
	var unsupported map[string]any
	require.NoError(t, conn.ReadJSON(&unsupported))
	assert.Equal(t, "unsupported_type", unsupported["code"])
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{CORSOrigins: []string{"https://app.example"}}, stubGateway{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/ws"
	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
