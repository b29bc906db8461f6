package llmfactory_test

import (
	"context"
	"testing"

	"github.com/effective-security/mcpagent/pkg/llmfactory"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	provider string
	model    string
}

func (f *fakeLLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(f.provider)
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.model}}}, nil
}

func useFakeLLM(t *testing.T) {
	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		return &fakeLLM{provider: cfg.Name, model: cfg.FindModel(preferredModels...)}, nil
	}
	t.Cleanup(func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	})
}

func Test_Factory(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")

	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 5)
	assert.Equal(t, "fakekey", cfg.Providers[0].Token)

	useFakeLLM(t)

	f := llmfactory.New(cfg)
	model, err := f.DefaultModel()
	require.NoError(t, err)
	fm := model.(*fakeLLM)
	assert.Equal(t, "gpt-4o", fm.model)
	assert.Equal(t, "OPENAI", fm.provider)

	model, err = f.ModelByName("gpt-4o-mini")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-4o-mini", fm.model)
	assert.Equal(t, "OPENAI", fm.provider)

	model, err = f.ModelByName("unknown", "gpt-41-mini")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-41-mini", fm.model)
	assert.Equal(t, "AZURE", fm.provider)

	// falls back to the default
	model, err = f.ModelByName("non-existent-model")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-4o", fm.model)

	model, err = f.ModelByType("ANTHROPIC")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "claude-sonnet-4-20250514", fm.model)

	model2, err := f.ModelByType("anthropic")
	require.NoError(t, err)
	assert.Same(t, model, model2)

	model, err = f.ModelByType("gemini")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gemini-2.5-flash", fm.model)
	assert.Equal(t, "GOOGLEAI", fm.provider)

	model, err = f.ModelByName("us.anthropic.claude-sonnet-4-20250514-v1:0")
	require.NoError(t, err)
	assert.Equal(t, "BEDROCK", model.(*fakeLLM).provider)

	_, err = f.ModelByType("UNSUPPORTED")
	assert.EqualError(t, err, "provider not found for type: UNSUPPORTED")

	_, err = llmfactory.New(&llmfactory.Config{}).DefaultModel()
	assert.EqualError(t, err, "no providers configured")

	model, err = llmfactory.New(&llmfactory.Config{
		DefaultProvider: "non-existent",
		Providers:       cfg.Providers,
	}).DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "OPENAI", model.(*fakeLLM).provider)
}

func Test_Load(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")

	f, err := llmfactory.Load("testdata/llm.yaml")
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = llmfactory.Load("testdata/non-existent.yaml")
	require.Error(t, err)

	_, err = llmfactory.LoadConfig("testdata/invalid.yaml")
	require.Error(t, err)

	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)
}

func Test_CreateLLM(t *testing.T) {
	cfg := &llmfactory.ProviderConfig{
		Name:            "test-provider",
		Token:           "fakekey",
		AvailableModels: []string{"gpt-4o"},
		DefaultModel:    "gpt-4o",
		OpenAI: llmfactory.OpenAIConfig{
			APIType: "OPEN_AI",
		},
	}

	model, err := llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenAI, model.GetProviderType())

	cfg.OpenAI.APIType = "AZURE"
	_, err = llmfactory.CreateLLM(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")

	cfg.OpenAI.BaseURL = "https://example.openai.azure.com"
	model, err = llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderAzure, model.GetProviderType())

	cfg.OpenAI.APIType = "ANTHROPIC"
	cfg.OpenAI.BaseURL = ""
	cfg.DefaultModel = "claude-3-5-haiku-latest"
	model, err = llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderAnthropic, model.GetProviderType())

	cfg.OpenAI.APIType = "GEMINI"
	cfg.DefaultModel = "gemini-2.5-flash"
	model, err = llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderGoogleAI, model.GetProviderType())

	cfg.OpenAI.APIType = "BEDROCK"
	cfg.DefaultModel = "amazon.titan-text-lite-v1"
	cfg.Cloud.Region = "us-west-2"
	_, err = llmfactory.CreateLLM(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bedrock: unsupported provider")

	t.Setenv("AWS_ACCESS_KEY_ID", "fake")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "fake")
	cfg.DefaultModel = "us.anthropic.claude-3-5-haiku-20241022-v1:0"
	model, err = llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderBedrock, model.GetProviderType())

	cfg.OpenAI.APIType = "COHERE"
	_, err = llmfactory.CreateLLM(cfg)
	assert.EqualError(t, err, "unsupported provider type: COHERE")
}
