package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rrens/policy-assistant/internal/domain"
)

// Attachment is a file on disk to send along with a query
type Attachment struct {
	Name string
	Path string
}

// QueryRequest contains the parameters of one retrieval query
type QueryRequest struct {
	Query     string
	TopK      int
	Threshold float64
	Files     []Attachment
}

// QueryResponse is the AI service's answer to /query
type QueryResponse struct {
	Answer string `json:"answer"`
	Files  []any  `json:"files"`
}

// BatchQueryRequest is forwarded to /batch-query
type BatchQueryRequest struct {
	Queries   []string `json:"queries"`
	TopK      int      `json:"top_k"`
	Threshold float64  `json:"threshold"`
}

// BatchQueryResponse is the AI service's answer to /batch-query
type BatchQueryResponse struct {
	Responses    []QueryResponse `json:"responses"`
	TotalQueries int             `json:"total_queries"`
}

// Service defines the operations the gateway consumes from the AI service
type Service interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	BatchQuery(ctx context.Context, req BatchQueryRequest) (*BatchQueryResponse, error)
	LoadDocuments(ctx context.Context) (json.RawMessage, error)
	Stats(ctx context.Context) (json.RawMessage, error)
	Health(ctx context.Context) error
}

// Client talks to the document-retrieval service over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

var _ Service = (*Client)(nil)

// NewClient creates a new AI service client. A zero timeout leaves requests unbounded.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Query sends the question and any attached files as a multipart form
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeQueryForm(form, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	var out QueryResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeQueryForm(form *multipart.Writer, req QueryRequest) error {
	fields := [][2]string{
		{"query", req.Query},
		{"top_k", strconv.Itoa(req.TopK)},
		{"threshold", strconv.FormatFloat(req.Threshold, 'f', -1, 64)},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	for _, file := range req.Files {
		if err := copyFilePart(form, file); err != nil {
			return err
		}
	}

	return form.Close()
}

func copyFilePart(form *multipart.Writer, file Attachment) error {
	src, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("failed to open attachment %s: %w", file.Name, err)
	}
	defer src.Close()

	part, err := form.CreateFormFile("files", file.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

// BatchQuery forwards several questions in one JSON request
func (c *Client) BatchQuery(ctx context.Context, req BatchQueryRequest) (*BatchQueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batch-query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out BatchQueryResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadDocuments asks the service to (re)index its document folder
func (c *Client) LoadDocuments(ctx context.Context) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/load-documents", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out json.RawMessage
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the service's index statistics
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out json.RawMessage
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health checks the service's health endpoint
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(httpReq, nil)
}

// do executes the request and decodes a JSON body into out when out is non-nil
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned status %d: %s",
			domain.ErrUpstreamUnavailable, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", domain.ErrUpstreamUnavailable, req.URL.Path, err)
	}
	return nil
}
