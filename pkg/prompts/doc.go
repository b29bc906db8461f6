// Package prompts renders prompt templates in Go template or Jinja2 format.
package prompts
