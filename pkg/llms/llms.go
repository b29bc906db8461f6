package llms

import (
	"context"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llms_mock.gen.go -package mockllms

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the type of provider.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderAzure is the type of provider.
	ProviderAzure ProviderType = "AZURE"
	// ProviderBedrock is the type of provider.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the type of provider.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
	// ProviderOpenAI is the type of provider.
	ProviderOpenAI ProviderType = "OPENAI"
)

// Model is an interface chat models implement.
type Model interface {
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// CapabilityFunctionCalling is tool calling
	CapabilityFunctionCalling Capability = 1 << iota
	// CapabilityMultiToolCalling is more than one tool call in a message
	CapabilityMultiToolCalling
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI:    CapabilityFunctionCalling | CapabilityMultiToolCalling,
	ProviderAzure:     CapabilityFunctionCalling | CapabilityMultiToolCalling,
	ProviderAnthropic: CapabilityFunctionCalling | CapabilityMultiToolCalling,
	ProviderBedrock:   CapabilityFunctionCalling | CapabilityMultiToolCalling,
	ProviderGoogleAI:  CapabilityFunctionCalling | CapabilityMultiToolCalling,
}

// Supports returns true when the provider has all the capabilities
func (p ProviderType) Supports(cap Capability) bool {
	return cap != 0 && providerCapabilities[p]&cap == cap
}
