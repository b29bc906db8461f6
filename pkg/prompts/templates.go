package prompts

import (
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/nikolalohinski/gonja"
)

// TemplateFormat is the format of the template.
type TemplateFormat string

const (
	// TemplateFormatGoTemplate is the format for go-template with sprig functions.
	TemplateFormatGoTemplate TemplateFormat = "go-template"
	// TemplateFormatJinja2 is the format for jinja2.
	TemplateFormatJinja2 TemplateFormat = "jinja2"
)

// ErrInvalidTemplateFormat is returned for unknown template formats.
var ErrInvalidTemplateFormat = errors.New("invalid template format")

// ErrMissingVariables is returned when a required input variable is not provided.
var ErrMissingVariables = errors.New("missing input variables")

// RenderTemplate renders the template with the values.
func RenderTemplate(tmpl string, format TemplateFormat, values map[string]any) (string, error) {
	switch format {
	case TemplateFormatGoTemplate, "":
		return interpolateGoTemplate(tmpl, values)
	case TemplateFormatJinja2:
		return interpolateJinja2(tmpl, values)
	}
	return "", errors.WithMessagef(ErrInvalidTemplateFormat, "%q", format)
}

func interpolateGoTemplate(tmpl string, values map[string]any) (string, error) {
	parsed, err := template.New("template").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "unable to parse template")
	}
	var sb strings.Builder
	if err = parsed.Execute(&sb, values); err != nil {
		return "", errors.Wrap(err, "unable to render template")
	}
	return sb.String(), nil
}

func interpolateJinja2(tmpl string, values map[string]any) (string, error) {
	tpl, err := gonja.FromString(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "unable to parse template")
	}
	out, err := tpl.Execute(values)
	if err != nil {
		return "", errors.Wrap(err, "unable to render template")
	}
	return out, nil
}

// PromptTemplate is a template with declared input variables
// and optional partial values applied on every render.
type PromptTemplate struct {
	Template         string         `json:"template" yaml:"template"`
	TemplateFormat   TemplateFormat `json:"template_format,omitempty" yaml:"template_format,omitempty"`
	InputVariables   []string       `json:"input_variables,omitempty" yaml:"input_variables,omitempty"`
	PartialVariables map[string]any `json:"partial_variables,omitempty" yaml:"partial_variables,omitempty"`
}

// NewPromptTemplate returns go-template prompt
func NewPromptTemplate(tmpl string, inputVars []string) PromptTemplate {
	return PromptTemplate{
		Template:       tmpl,
		TemplateFormat: TemplateFormatGoTemplate,
		InputVariables: inputVars,
	}
}

// Format renders the template, values override partial variables.
func (p PromptTemplate) Format(values map[string]any) (string, error) {
	merged := make(map[string]any, len(values)+len(p.PartialVariables))
	for k, v := range p.PartialVariables {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}

	var missing []string
	for _, name := range p.InputVariables {
		if _, ok := merged[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", errors.WithMessagef(ErrMissingVariables, "%s", strings.Join(missing, ", "))
	}
	return RenderTemplate(p.Template, p.TemplateFormat, merged)
}
