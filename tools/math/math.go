// Package math provides arithmetic tools
package math

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/mcpagent/tools"
	mcp "github.com/metoro-io/mcp-golang"
)

// Tool names
const (
	AddToolName      = "add"
	SubtractToolName = "subtract"
	MultiplyToolName = "multiply"
	DivideToolName   = "divide"
)

// ErrDivisionByZero is returned by the divide tool
var ErrDivisionByZero = errors.New("division by zero")

// Operands is the input of the arithmetic tools
type Operands struct {
	A float64 `json:"a" yaml:"a" jsonschema:"required,title=A,description=The first operand."`
	B float64 `json:"b" yaml:"b" jsonschema:"required,title=B,description=The second operand."`
}

// Result is the output of the arithmetic tools
type Result struct {
	Result float64 `json:"result" yaml:"result"`
}

func (r *Result) String() string {
	return strconv.FormatFloat(r.Result, 'f', -1, 64)
}

type operation func(a, b float64) (float64, error)

// Tool is an arithmetic operation over two numbers
type Tool struct {
	name        string
	description string
	op          operation
}

var _ tools.Tool[Operands, Result] = (*Tool)(nil)
var _ tools.MCPTool[Operands] = (*Tool)(nil)

// Add returns the tool that adds two numbers
func Add() *Tool {
	return &Tool{
		name:        AddToolName,
		description: "Add two numbers.",
		op:          func(a, b float64) (float64, error) { return a + b, nil },
	}
}

// Subtract returns the tool that subtracts b from a
func Subtract() *Tool {
	return &Tool{
		name:        SubtractToolName,
		description: "Subtract the second number from the first.",
		op:          func(a, b float64) (float64, error) { return a - b, nil },
	}
}

// Multiply returns the tool that multiplies two numbers
func Multiply() *Tool {
	return &Tool{
		name:        MultiplyToolName,
		description: "Multiply two numbers.",
		op:          func(a, b float64) (float64, error) { return a * b, nil },
	}
}

// Divide returns the tool that divides a by b
func Divide() *Tool {
	return &Tool{
		name:        DivideToolName,
		description: "Divide the first number by the second.",
		op: func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.WithStack(ErrDivisionByZero)
			}
			return a / b, nil
		},
	}
}

// All returns all arithmetic tools
func All() []tools.IMCPTool {
	return []tools.IMCPTool{Add(), Subtract(), Multiply(), Divide()}
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() any {
	sc, err := schema.For[Operands]()
	if err != nil {
		return nil
	}
	return sc.Parameters
}

func (t *Tool) Run(_ context.Context, req *Operands) (*Result, error) {
	res, err := t.op(req.A, req.B)
	if err != nil {
		return nil, err
	}
	return &Result{Result: res}, nil
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	req, err := tools.ParseInput[Operands](input)
	if err != nil {
		return "", err
	}
	out, err := t.Run(ctx, req)
	if err != nil {
		return "", err
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output")
	}
	return string(bs), nil
}

func (t *Tool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

func (t *Tool) RunMCP(ctx context.Context, req *Operands) (*mcp.ToolResponse, error) {
	out, err := t.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(out.String())), nil
}
