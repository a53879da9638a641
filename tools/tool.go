package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/rtrompier/agentai/pkg/llmutils"
	"github.com/rtrompier/agentai/pkg/schema"
)

//go:generate mockgen -source=tool.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

var (
	// ErrDuplicateName is returned by Register when a tool with the same
	// name is already present. The failed registration leaves the registry
	// unchanged.
	ErrDuplicateName = errors.New("tool with the same name is already registered")
	// ErrNotFound is returned by Resolve when no tool matches the requested name.
	ErrNotFound = errors.New("tool not found")
	// ErrExecution marks errors returned by a tool call. The agent feeds
	// such failures back to the model instead of aborting the run.
	ErrExecution = errors.New("tool execution failed")
	// ErrFailedUnmarshalInput is returned when a tool cannot decode its arguments.
	ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")
)

// ITool is the context-free view of a tool: the name, description and
// parameters definition advertised to the model. Callbacks and prompt
// builders work with this view.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() any
}

// Tool is a capability the agent exposes to the model. The type parameter C
// is the application context carried into every call, the package never
// inspects it.
type Tool[C any] interface {
	ITool

	// Call executes the tool with the given input and returns the result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(ctx context.Context, tc C, input string) (string, error)
}

// Callback receives tool lifecycle events.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, agentName, input string)
	OnToolEnd(ctx context.Context, tool ITool, agentName, input string, output string)
	OnToolError(ctx context.Context, tool ITool, agentName, input string, err error)
}

// Func is a tool callable built from a plain function.
type Func[C any] func(ctx context.Context, tc C, input string) (string, error)

// FuncTool adapts a function into a Tool. It is the local-closure variant of
// the capability interface, MCP-derived tools are the forwarding variant.
type FuncTool[C any] struct {
	name        string
	description string
	funcParams  any
	fn          Func[C]
}

// ensure FuncTool implements the Tool interface
var _ Tool[any] = (*FuncTool[any])(nil)

// New creates a tool from a name, a description, a JSON schema shaped
// parameters definition and a callable.
func New[C any](name, description string, params any, fn Func[C]) *FuncTool[C] {
	return &FuncTool[C]{
		name:        name,
		description: description,
		funcParams:  params,
		fn:          fn,
	}
}

// NewTyped creates a tool whose parameters definition is reflected from the
// input type I. Arguments are decoded into I before the callable is invoked.
func NewTyped[C any, I any](name, description string, fn func(ctx context.Context, tc C, input *I) (string, error)) (*FuncTool[C], error) {
	var def I
	sc, err := schema.New(reflect.TypeOf(def))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	t := &FuncTool[C]{
		name:        name,
		description: description,
		funcParams:  sc.Parameters,
		fn: func(ctx context.Context, tc C, input string) (string, error) {
			var tin I
			if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &tin); err != nil {
				return "", errors.WithStack(ErrFailedUnmarshalInput)
			}
			return fn(ctx, tc, &tin)
		},
	}
	return t, nil
}

func (t *FuncTool[C]) Name() string {
	return t.name
}

func (t *FuncTool[C]) Description() string {
	return t.description
}

func (t *FuncTool[C]) Parameters() any {
	return t.funcParams
}

func (t *FuncTool[C]) Call(ctx context.Context, tc C, input string) (string, error) {
	res, err := t.fn(ctx, tc, input)
	if err != nil {
		return "", errors.Mark(err, ErrExecution)
	}
	return res, nil
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns a JSON block describing the given tools, suitable
// for inclusion in a prompt.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return llmutils.BackticksJSON(llmutils.ToJSONIndent(d))
}
