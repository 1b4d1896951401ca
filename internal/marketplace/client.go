// Package marketplace is the agent's client for the Q&A marketplace: MCP
// tool calls over JSON-RPC for every agent action, plus the HTTP
// notification stream and post listing used by the push path.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/andywolf/wikiagent/internal/version"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryAttempts = 3
	breakerThreshold     = 5
	breakerTimeout       = 30 * time.Second
	maxErrorBody         = 4096
)

// DefaultRetryDelay is the first backoff step between tool call attempts.
const DefaultRetryDelay = 500 * time.Millisecond

// Client calls marketplace tools on behalf of one agent.
type Client struct {
	mcpURL        string
	baseURL       string
	token         string
	httpClient    *http.Client
	streamClient  *http.Client
	retryAttempts int
	retryDelay    time.Duration

	retry   retry.Retry[string]
	breaker circuitbreaker.CircuitBreaker[toolOutcome]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the client used for tool calls and listings.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithStreamClient sets the client used for the long-lived stream. It
// should have no overall timeout.
func WithStreamClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.streamClient = c
	}
}

// WithBaseURL sets the marketplace web origin for streaming and backfill.
func WithBaseURL(url string) ClientOption {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(url, "/")
	}
}

// WithRetry sets the attempt count and initial backoff for tool calls.
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(cl *Client) {
		cl.retryAttempts = attempts
		cl.retryDelay = delay
	}
}

// NewClient creates a client for the MCP endpoint at mcpURL.
func NewClient(mcpURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		mcpURL:        mcpURL,
		token:         token,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		streamClient:  &http.Client{},
		retryAttempts: defaultRetryAttempts,
		retryDelay:    DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryAttempts < 1 {
		c.retryAttempts = 1
	}

	c.retry = retry.New[string](retry.Config{
		MaxAttempts:   c.retryAttempts,
		InitialDelay:  c.retryDelay,
		BackoffPolicy: retry.BackoffExponential,
		Multiplier:    2.0,
		NonRetryableErrors: []error{
			ErrNotFound, ErrPaymentRequired, ErrAlreadyAnswered, ErrUnauthorized, ErrRejected,
		},
	})
	c.breaker = circuitbreaker.New[toolOutcome](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    breakerTimeout,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
	})
	return c
}

// BreakerState reports the tool-call circuit breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// toolOutcome carries business errors through the breaker without counting
// them as failures; only transport errors trip it.
type toolOutcome struct {
	text string
	err  error
}

// CallTool invokes a tool and decodes its JSON text result into out (which
// may be nil).
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}, out interface{}) error {
	res, err := c.breaker.Execute(ctx, func(ctx context.Context) (toolOutcome, error) {
		text, err := c.retry.Do(ctx, func(ctx context.Context) (string, error) {
			return c.callOnce(ctx, name, args)
		})
		if err != nil && !transient(err) {
			return toolOutcome{err: err}, nil
		}
		return toolOutcome{text: text}, err
	})
	if err != nil {
		return fmt.Errorf("call tool %s: %w", name, err)
	}
	if res.err != nil {
		return res.err
	}

	if out == nil || strings.TrimSpace(res.text) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(res.text), out); err != nil {
		return fmt.Errorf("decode %s result: %w", name, err)
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Result  *toolResult `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// rpcMethodNotFound is the JSON-RPC code for an unknown method. It says
// nothing about the question or post being looked up.
const rpcMethodNotFound = -32601

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Client) callOnce(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: args},
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mcpURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Op: name, Message: err.Error(), kind: ErrUnavailable}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", newError(name, resp.StatusCode, errorMessage(raw))
	}

	payload, err := readRPCPayload(resp)
	if err != nil {
		return "", &Error{Op: name, Status: resp.StatusCode, Message: err.Error(), kind: ErrUnavailable}
	}

	var rpc rpcResponse
	if err := json.Unmarshal(payload, &rpc); err != nil {
		return "", &Error{Op: name, Status: resp.StatusCode, Message: "invalid JSON-RPC response: " + err.Error(), kind: ErrRejected}
	}
	if rpc.Error != nil {
		if rpc.Error.Code == rpcMethodNotFound {
			return "", &Error{Op: name, Message: rpc.Error.Message, kind: ErrRejected}
		}
		return "", newError(name, 0, rpc.Error.Message)
	}
	if rpc.Result == nil {
		return "", nil
	}

	text := ""
	if len(rpc.Result.Content) > 0 {
		text = rpc.Result.Content[0].Text
	}
	if rpc.Result.IsError {
		return "", newError(name, 0, text)
	}
	return text, nil
}

// readRPCPayload handles both plain JSON responses and streamable-HTTP
// responses that wrap the JSON-RPC message in an event frame.
func readRPCPayload(resp *http.Response) ([]byte, error) {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		frame, err := NewFrameReader(resp.Body).Next()
		if err != nil {
			return nil, fmt.Errorf("read event-stream response: %w", err)
		}
		return []byte(frame.Data), nil
	}
	return io.ReadAll(resp.Body)
}

// errorMessage extracts a readable message from an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Error   interface{} `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch e := body.Error.(type) {
		case string:
			if e != "" {
				return e
			}
		case map[string]interface{}:
			if msg, ok := e["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
