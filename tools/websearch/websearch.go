// Package websearch provides a web search tool backed by the Tavily API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"reflect"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/rtrompier/agentai/pkg/llmutils"
	"github.com/rtrompier/agentai/pkg/schema"
	"github.com/rtrompier/agentai/tools"
)

const ToolName = "web_search"

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" yaml:"query" jsonschema:"title=Search Query,description=The query to search the web for."`
}

// SearchResult represents the structure for a search response
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results"`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty"`
}

// Option configures the tool.
type Option func(*settings)

type settings struct {
	name        string
	searchDepth string
	baseURL     string
	httpClient  *http.Client
}

// WithName overrides the registered tool name.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// WithSearchDepth selects the Tavily search depth, "basic" or "advanced".
func WithSearchDepth(depth string) Option {
	return func(s *settings) {
		s.searchDepth = depth
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(s *settings) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// Tool is a tool that provides a web search functionality
type Tool[C any] struct {
	name        string
	description string
	params      any

	apiKey      string
	searchDepth string
	baseURL     string
	httpClient  *http.Client
}

var _ tools.Tool[any] = (*Tool[any])(nil)

// New creates the tool. An empty apiKey falls back to the TAVILY_API_KEY
// environment variable.
func New[C any](apiKey string, opts ...Option) (*Tool[C], error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("tavily API key is not set")
	}

	sc, err := schema.New(reflect.TypeOf(SearchRequest{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}

	cfg := settings{
		name:        ToolName,
		searchDepth: "basic",
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Tool[C]{
		name:        cfg.name,
		description: "Searches the web and returns the aggregated answer with the top results for a query.",
		params:      sc.Parameters,
		apiKey:      apiKey,
		searchDepth: cfg.searchDepth,
		baseURL:     cfg.baseURL,
		httpClient:  cfg.httpClient,
	}, nil
}

func (t *Tool[C]) Name() string {
	return t.name
}

func (t *Tool[C]) Description() string {
	return t.description
}

func (t *Tool[C]) Parameters() any {
	return t.params
}

// Search performs a web search for the given request.
func (t *Tool[C]) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchReq := tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   t.searchDepth,
		IncludeAnswer: true,
	}
	searchResp, err := tavilygo.Search(client, searchReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}

	return &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}, nil
}

func (t *Tool[C]) Call(ctx context.Context, tc C, input string) (string, error) {
	var req SearchRequest
	if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &req); err != nil {
		return "", errors.Mark(errors.WithStack(tools.ErrFailedUnmarshalInput), tools.ErrExecution)
	}
	out, err := t.Search(ctx, &req)
	if err != nil {
		return "", errors.Mark(err, tools.ErrExecution)
	}
	return llmutils.ToJSON(out), nil
}

func (r *SearchResult) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}

	return buf.String()
}
