// Package llm is a minimal client for OpenAI-compatible chat completion
// endpoints. It performs exactly one request per call and never retries;
// retry and failover live in package failover.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/liliang-cn/roundtable/internal/domain"
	"go.uber.org/zap"
)

// ChunkFunc receives streamed content. It is called with done=false for
// every non-empty delta and once with ("", true) when the stream ends.
type ChunkFunc func(delta string, done bool)

const (
	readBufferSize   = 4096
	maxErrorBodySize = 64 << 10
	probeMessage     = "Hi"
)

// Client talks to chat completion endpoints
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient and
// a nil logger discards logs.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// Stream sends messages to site with streaming enabled, delivers each
// content delta to onChunk and returns the accumulated text.
func (c *Client) Stream(ctx context.Context, site domain.Site, messages []domain.ChatMessage, onChunk ChunkFunc) (string, error) {
	if onChunk == nil {
		onChunk = func(string, bool) {}
	}

	resp, err := c.do(ctx, site, chatRequest{
		Model:       site.Model,
		Messages:    messages,
		Temperature: site.Temperature,
		MaxTokens:   site.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return "", err
	}
	if resp.Body == nil {
		return "", NewNoBodyError()
	}
	defer resp.Body.Close()
	if resp.Body == http.NoBody {
		onChunk("", true)
		return "", nil
	}

	var (
		dec  Decoder
		full strings.Builder
		buf  = make([]byte, readBufferSize)
	)
	deliver := func(ev Event) {
		if ev.Done {
			return
		}
		full.WriteString(ev.Delta)
		onChunk(ev.Delta, false)
	}

	for !dec.Done() {
		n, readErr := resp.Body.Read(buf)
		if ctx.Err() != nil {
			return "", NewAbortedError(ctx.Err())
		}
		if n > 0 {
			for ev := range dec.Feed(buf[:n]) {
				deliver(ev)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", NewNetworkError(readErr)
		}
	}

	for ev := range dec.Flush() {
		deliver(ev)
	}
	onChunk("", true)

	return full.String(), nil
}

// Send sends messages to site without streaming and returns the first
// choice's content
func (c *Client) Send(ctx context.Context, site domain.Site, messages []domain.ChatMessage) (string, error) {
	return c.send(ctx, site, messages, site.MaxTokens)
}

func (c *Client) send(ctx context.Context, site domain.Site, messages []domain.ChatMessage, maxTokens *int) (string, error) {
	resp, err := c.do(ctx, site, chatRequest{
		Model:       site.Model,
		Messages:    messages,
		Temperature: site.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp.Body == nil {
		return "", NewNoBodyError()
	}
	defer resp.Body.Close()
	if resp.Body == http.NoBody {
		return "", nil
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctx.Err() != nil {
			return "", NewAbortedError(ctx.Err())
		}
		return "", NewNetworkError(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return "", nil
	}
	return result.Choices[0].Message.Content, nil
}

// TestConnection sends a one-token probe to site and reports whether it
// succeeded
func (c *Client) TestConnection(ctx context.Context, site domain.Site) bool {
	maxTokens := 1
	_, err := c.send(ctx, site, []domain.ChatMessage{{Role: domain.RoleUser, Content: probeMessage}}, &maxTokens)
	if err != nil {
		c.logger.Debug("site probe failed",
			zap.String("site_id", site.ID),
			zap.String("site", site.Name),
			zap.Error(err),
		)
		return false
	}
	return true
}

// TestAll probes every site concurrently and returns the result per site id
func (c *Client) TestAll(ctx context.Context, sites []domain.Site) map[string]bool {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]bool, len(sites))
	)
	for _, site := range sites {
		wg.Add(1)
		go func(site domain.Site) {
			defer wg.Done()
			ok := c.TestConnection(ctx, site)
			mu.Lock()
			results[site.ID] = ok
			mu.Unlock()
		}(site)
	}
	wg.Wait()
	return results
}

// do issues the request and returns the response of a 2xx status.
// The caller owns the response body.
func (c *Client) do(ctx context.Context, site domain.Site, body chatRequest) (*http.Response, error) {
	if ctx.Err() != nil {
		return nil, NewAbortedError(ctx.Err())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("failed to encode request: %w", err))
	}

	url := strings.TrimRight(site.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewNetworkError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+site.APIKey)

	c.logger.Debug("chat completion request",
		zap.String("site_id", site.ID),
		zap.String("model", site.Model),
		zap.Bool("stream", body.Stream),
		zap.Int("messages", len(body.Messages)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewAbortedError(ctx.Err())
		}
		return nil, NewNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, httpError(resp)
	}
	return resp, nil
}

// httpError builds a KindHTTP error from the upstream error body, falling
// back to a synthesized message when the body is unreadable.
func httpError(resp *http.Response) *Error {
	if resp.Body == nil {
		return NewHTTPError(resp.StatusCode, "", "")
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return NewHTTPError(resp.StatusCode, "", "")
	}

	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return NewHTTPError(resp.StatusCode, "", "")
	}
	return NewHTTPError(resp.StatusCode, rawCode(parsed.Error.Code), parsed.Error.Message)
}

// rawCode renders an upstream error code that may be a JSON string or number
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
