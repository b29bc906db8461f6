package agent_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/graph"
	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/mocks/mockllms"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/mcpagent/tools/weather"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const parisAnswer = "The weather for Paris is 70 degrees."

// fakeServers serves get_weather and add tools for every opened session
type fakeServers struct {
	lock    sync.Mutex
	opens   int
	closes  int
	calls   []string
	openErr error
	callErr error
}

func (f *fakeServers) Open(_ context.Context, name string, _ *mcpconfig.Connection) (mcpclient.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeSession{servers: f, name: name}, nil
}

func (f *fakeServers) stats() (opens, closes int, calls []string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.opens, f.closes, append([]string(nil), f.calls...)
}

type fakeSession struct {
	servers *fakeServers
	name    string
}

func (s *fakeSession) ListTools(_ context.Context) ([]mcpclient.Tool, error) {
	sc, err := schema.For[weather.Request]()
	if err != nil {
		return nil, err
	}
	return []mcpclient.Tool{
		{Name: "add", Description: "Add two numbers"},
		{Name: weather.ToolName, Description: "Get the weather", Parameters: sc.Parameters},
	}, nil
}

func (s *fakeSession) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	s.servers.lock.Lock()
	defer s.servers.lock.Unlock()
	s.servers.calls = append(s.servers.calls, name)
	if s.servers.callErr != nil {
		return "", s.servers.callErr
	}
	switch name {
	case weather.ToolName:
		loc, _ := args["location"].(string)
		return weather.Forecast(loc).String(), nil
	case "add":
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return fmt.Sprintf("%g", a+b), nil
	}
	return "", errors.Errorf("unexpected tool %q", name)
}

func (s *fakeSession) Close() error {
	s.servers.lock.Lock()
	defer s.servers.lock.Unlock()
	s.servers.closes++
	return nil
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}

func callsResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls, StopReason: "tool_calls"}},
	}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text, StopReason: "stop"}},
	}
}

func newMockModel(t *testing.T) *mockllms.MockModel {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	return m
}

func toolNames(opts []llms.CallOption) []string {
	o := llms.NewCallOptions(llms.CallOptions{}, opts...)
	var names []string
	for _, t := range o.Tools {
		names = append(names, t.Function.Name)
	}
	return names
}

func TestNew_NoModel(t *testing.T) {
	_, err := agent.New(nil)
	assert.True(t, errors.Is(err, agent.ErrNoModel))

	_, err = agent.NewReact(nil)
	assert.True(t, errors.Is(err, agent.ErrNoModel))
}

func TestNew_ToolsNotSupported(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetProviderType().Return(llms.ProviderType("ECHO")).AnyTimes()

	_, err := agent.New(model)
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrToolsNotSupported))
	assert.Contains(t, err.Error(), `provider "ECHO"`)

	_, err = agent.NewReact(model)
	assert.True(t, errors.Is(err, agent.ErrToolsNotSupported))
}

func TestInvoke_NoToolCall(t *testing.T) {
	ctx := context.Background()
	servers := &fakeServers{}
	model := newMockModel(t)

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 2)
			assert.Equal(t, llms.RoleSystem, msgs[0].Role)
			assert.Equal(t, "You are a helpful assistant. Use the tools when they help to answer the question: add, get_weather. Always respond in French.", msgs[0].Text())
			assert.Equal(t, []string{"add", weather.ToolName}, toolNames(opts))
			return textResponse("Bonjour!"), nil
		}).Times(1)

	a, err := agent.New(model, agent.WithOpener(servers))
	require.NoError(t, err)
	assert.Equal(t, agent.DefaultName, a.Name())

	res, err := a.Invoke(ctx, agent.State{
		Messages: []llms.Message{llms.HumanMessage("Hi")},
		Language: "French",
	}, "")
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, llms.AIMessage("Bonjour!"), res.Messages[1])
	assert.Equal(t, graph.END, agent.RouteAfterChat(res))

	opens, closes, calls := servers.stats()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
	assert.Empty(t, calls)
}

func TestInvoke_Weather(t *testing.T) {
	ctx := context.Background()
	servers := &fakeServers{}
	model := newMockModel(t)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callsResponse(toolCall("call_1", weather.ToolName, `{"location":"Paris"}`)), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				last := msgs[len(msgs)-1]
				assert.Equal(t, llms.RoleTool, last.Role)
				resps := last.ToolResponses()
				require.Len(t, resps, 1)
				assert.Equal(t, "call_1", resps[0].ToolCallID)
				assert.Equal(t, parisAnswer, resps[0].Content)
				return textResponse("It is 70 degrees in Paris."), nil
			}),
	)

	var out bytes.Buffer
	a, err := agent.New(model,
		agent.WithName("weather"),
		agent.WithOpener(servers),
		agent.WithCallback(callbacks.NewPrinter(&out, callbacks.ModeDefault)),
	)
	require.NoError(t, err)

	res, err := a.Invoke(ctx, agent.State{
		Messages: []llms.Message{llms.HumanMessage("What's the weather in Paris?")},
	}, "")
	require.NoError(t, err)

	want := []llms.Message{
		llms.HumanMessage("What's the weather in Paris?"),
		llms.MessageFromToolCalls(llms.RoleAI, toolCall("call_1", weather.ToolName, `{"location":"Paris"}`)),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: "call_1",
			Name:       weather.ToolName,
			Content:    parisAnswer,
		}),
		llms.AIMessage("It is 70 degrees in Paris."),
	}
	if diff := cmp.Diff(want, res.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	opens, closes, calls := servers.stats()
	// chat, tools, chat
	assert.Equal(t, 3, opens)
	assert.Equal(t, opens, closes)
	assert.Equal(t, []string{weather.ToolName}, calls)

	assert.Contains(t, out.String(), "Tool Start: get_weather (weather)")
}

func TestInvoke_Action(t *testing.T) {
	ctx := context.Background()

	tcases := []struct {
		name  string
		calls []llms.ToolCall
	}{
		{"action", []llms.ToolCall{toolCall("c1", "open_map", `{"location":"Paris"}`)}},
		{"action with tool", []llms.ToolCall{
			toolCall("c1", weather.ToolName, `{"location":"Paris"}`),
			toolCall("c2", "open_map", `{"location":"Paris"}`),
		}},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			servers := &fakeServers{}
			model := newMockModel(t)
			model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
					assert.Contains(t, msgs[0].Text(), "The user interface can perform these actions for the user: open_map.")
					assert.Equal(t, []string{"add", weather.ToolName, "open_map"}, toolNames(opts))
					return callsResponse(tc.calls...), nil
				}).Times(1)

			a, err := agent.New(model, agent.WithOpener(servers))
			require.NoError(t, err)

			res, err := a.Invoke(ctx, agent.State{
				Messages: []llms.Message{llms.HumanMessage("Show Paris on the map")},
				Actions:  []agent.Action{{Name: "open_map", Description: "Opens the map"}},
			}, "")
			require.NoError(t, err)
			require.Len(t, res.Messages, 2)
			assert.Equal(t, tc.calls, res.PendingToolCalls())

			opens, closes, calls := servers.stats()
			assert.Equal(t, 1, opens)
			assert.Equal(t, 1, closes)
			assert.Empty(t, calls)
		})
	}
}

func TestInvoke_OneToolStepPerCall(t *testing.T) {
	ctx := context.Background()
	servers := &fakeServers{}
	model := newMockModel(t)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callsResponse(
				toolCall("w1", weather.ToolName, `{"location":"Paris"}`),
				toolCall("a1", "add", "```json\n{\"a\": 1, \"b\": 2}\n```"),
			), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(textResponse("done"), nil),
	)

	a, err := agent.New(model, agent.WithOpener(servers))
	require.NoError(t, err)

	res, err := a.Invoke(ctx, agent.State{
		Messages: []llms.Message{llms.HumanMessage("weather and 1+2")},
	}, "")
	require.NoError(t, err)
	require.Len(t, res.Messages, 5)

	r1 := res.Messages[2].ToolResponses()
	r2 := res.Messages[3].ToolResponses()
	require.Len(t, r1, 1)
	require.Len(t, r2, 1)
	assert.Equal(t, "w1", r1[0].ToolCallID)
	assert.Equal(t, parisAnswer, r1[0].Content)
	assert.Equal(t, "a1", r2[0].ToolCallID)
	assert.Equal(t, "3", r2[0].Content)

	opens, closes, calls := servers.stats()
	// both calls share the session of the tool step
	assert.Equal(t, 3, opens)
	assert.Equal(t, opens, closes)
	assert.Equal(t, []string{weather.ToolName, "add"}, calls)
}

func TestInvoke_ToolResultsForModel(t *testing.T) {
	ctx := context.Background()

	tcases := []struct {
		name string
		call llms.ToolCall
		exp  string
	}{
		{
			name: "not found",
			call: toolCall("c1", "get_time", `{}`),
			exp:  `Tool "get_time" not found, use one of: add, get_weather`,
		},
		{
			name: "invalid arguments",
			call: toolCall("c1", "add", `[1,2,3]`),
			exp:  `Error: invalid arguments for tool "add"`,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			servers := &fakeServers{}
			model := newMockModel(t)
			gomock.InOrder(
				model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(callsResponse(tc.call), nil),
				model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(textResponse("sorry"), nil),
			)

			a, err := agent.New(model, agent.WithOpener(servers))
			require.NoError(t, err)

			res, err := a.Invoke(ctx, agent.State{Messages: []llms.Message{llms.HumanMessage("hi")}}, "")
			require.NoError(t, err)
			require.Len(t, res.Messages, 4)

			resps := res.Messages[2].ToolResponses()
			require.Len(t, resps, 1)
			assert.Equal(t, "c1", resps[0].ToolCallID)
			assert.Contains(t, resps[0].Content, tc.exp)

			_, _, calls := servers.stats()
			assert.Empty(t, calls)
		})
	}
}

func TestInvoke_Failures(t *testing.T) {
	ctx := context.Background()
	state := agent.State{Messages: []llms.Message{llms.HumanMessage("What's the weather in Paris?")}}

	t.Run("tool error", func(t *testing.T) {
		servers := &fakeServers{callErr: errors.New("connection reset")}
		model := newMockModel(t)
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callsResponse(toolCall("c1", weather.ToolName, `{"location":"Paris"}`)), nil)

		a, err := agent.New(model, agent.WithOpener(servers))
		require.NoError(t, err)

		_, err = a.Invoke(ctx, state, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `node "tool_node": tool "get_weather": connection reset`)

		opens, closes, _ := servers.stats()
		assert.Equal(t, 2, opens)
		assert.Equal(t, opens, closes)
	})

	t.Run("model error", func(t *testing.T) {
		servers := &fakeServers{}
		model := newMockModel(t)
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("rate limited"))

		a, err := agent.New(model, agent.WithOpener(servers), agent.WithModelName("gpt-test"))
		require.NoError(t, err)

		_, err = a.Invoke(ctx, state, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `model "gpt-test": rate limited`)

		opens, closes, _ := servers.stats()
		assert.Equal(t, 1, opens)
		assert.Equal(t, 1, closes)
	})

	t.Run("open error", func(t *testing.T) {
		servers := &fakeServers{openErr: errors.New("executable not found")}
		model := newMockModel(t)

		a, err := agent.New(model, agent.WithOpener(servers))
		require.NoError(t, err)

		_, err = a.Invoke(ctx, state, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executable not found")
	})

	t.Run("recursion limit", func(t *testing.T) {
		servers := &fakeServers{}
		model := newMockModel(t)
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callsResponse(toolCall("c1", "add", `{"a":1,"b":1}`)), nil).
			AnyTimes()

		a, err := agent.New(model, agent.WithOpener(servers), agent.WithRecursionLimit(3))
		require.NoError(t, err)

		_, err = a.Invoke(ctx, state, "")
		assert.True(t, errors.Is(err, graph.ErrRecursionLimit))

		opens, closes, _ := servers.stats()
		assert.Equal(t, 3, opens)
		assert.Equal(t, opens, closes)
	})
}

func TestInvoke_InvalidState(t *testing.T) {
	ctx := context.Background()
	model := newMockModel(t)

	a, err := agent.New(model, agent.WithOpener(&fakeServers{}))
	require.NoError(t, err)

	_, err = a.Invoke(ctx, agent.State{
		Messages: []llms.Message{llms.HumanMessage("hi")},
		Actions:  []agent.Action{{Description: "no name"}},
	}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid action at 0")

	_, err = a.Invoke(ctx, agent.State{
		Messages:  []llms.Message{llms.HumanMessage("hi")},
		MCPConfig: mcpconfig.Config{"weather": {Transport: mcpconfig.TransportSSE}},
	}, "")
	assert.True(t, errors.Is(err, mcpconfig.ErrInvalidConnection))
}

func TestInterruptBeforeTools(t *testing.T) {
	ctx := context.Background()
	servers := &fakeServers{}
	model := newMockModel(t)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callsResponse(toolCall("call_1", weather.ToolName, `{"location":"Paris"}`)), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(textResponse("It is 70 degrees in Paris."), nil),
	)

	a, err := agent.New(model,
		agent.WithOpener(servers),
		agent.WithCheckpointer(store.NewMemoryStore()),
		agent.WithInterruptBeforeTools(),
	)
	require.NoError(t, err)

	res, err := a.Invoke(ctx, agent.State{
		Messages: []llms.Message{llms.HumanMessage("What's the weather in Paris?")},
	}, "thread1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrInterrupted))
	assert.Len(t, res.Messages, 2)

	_, _, calls := servers.stats()
	assert.Empty(t, calls)

	saved, next, err := a.GetState(ctx, "thread1")
	require.NoError(t, err)
	assert.Equal(t, agent.ToolNodeName, next)
	assert.Len(t, saved.PendingToolCalls(), 1)

	res, err = a.Resume(ctx, "thread1")
	require.NoError(t, err)
	require.Len(t, res.Messages, 4)
	assert.Equal(t, parisAnswer, res.Messages[2].Text())
	assert.Equal(t, "It is 70 degrees in Paris.", res.Messages[3].Text())

	_, next, err = a.GetState(ctx, "thread1")
	require.NoError(t, err)
	assert.Equal(t, graph.END, next)

	_, _, calls = servers.stats()
	assert.Equal(t, []string{weather.ToolName}, calls)
}

func TestNewReact(t *testing.T) {
	ctx := context.Background()
	servers := &fakeServers{}
	model := newMockModel(t)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callsResponse(toolCall("call_1", weather.ToolName, `{"location":"Paris"}`)), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(textResponse("It is 70 degrees in Paris."), nil),
	)

	a, err := agent.NewReact(model, agent.WithOpener(servers))
	require.NoError(t, err)

	res, err := a.Invoke(ctx, agent.State{
		Messages: []llms.Message{llms.HumanMessage("What's the weather in Paris?")},
	}, "")
	require.NoError(t, err)
	require.Len(t, res.Messages, 4)
	assert.Equal(t, parisAnswer, res.Messages[2].Text())

	opens, closes, calls := servers.stats()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
	assert.Equal(t, []string{weather.ToolName}, calls)
}

func TestNewReact_Action(t *testing.T) {
	ctx := context.Background()
	servers := &fakeServers{}
	model := newMockModel(t)
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(callsResponse(toolCall("c1", "open_map", `{}`)), nil).
		Times(1)

	a, err := agent.NewReact(model, agent.WithOpener(servers))
	require.NoError(t, err)

	res, err := a.Invoke(ctx, agent.State{
		Messages: []llms.Message{llms.HumanMessage("Show the map")},
		Actions:  []agent.Action{{Name: "open_map"}},
	}, "")
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)

	_, _, calls := servers.stats()
	assert.Empty(t, calls)
}

func TestRouteAfterChat(t *testing.T) {
	weatherCall := toolCall("c1", weather.ToolName, `{}`)
	actionCall := toolCall("c2", "open_map", `{}`)
	actions := []agent.Action{{Name: "open_map"}}

	tcases := []struct {
		name  string
		state agent.State
		exp   string
	}{
		{"empty", agent.State{}, graph.END},
		{"text", agent.State{Messages: []llms.Message{llms.AIMessage("hi")}}, graph.END},
		{"tool call", agent.State{
			Messages: []llms.Message{llms.MessageFromToolCalls(llms.RoleAI, weatherCall)},
		}, agent.ToolNodeName},
		{"action", agent.State{
			Messages: []llms.Message{llms.MessageFromToolCalls(llms.RoleAI, actionCall)},
			Actions:  actions,
		}, graph.END},
		{"tool and action", agent.State{
			Messages: []llms.Message{llms.MessageFromToolCalls(llms.RoleAI, weatherCall, actionCall)},
			Actions:  actions,
		}, graph.END},
		{"action name without action", agent.State{
			Messages: []llms.Message{llms.MessageFromToolCalls(llms.RoleAI, actionCall)},
		}, agent.ToolNodeName},
		{"calls of human", agent.State{
			Messages: []llms.Message{llms.MessageFromToolCalls(llms.RoleHuman, weatherCall)},
		}, graph.END},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, agent.RouteAfterChat(tc.state))
		})
	}
}
