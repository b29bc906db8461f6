// Package llmfactory creates chat models from provider configuration.
package llmfactory
