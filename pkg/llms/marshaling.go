package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Part types used in the JSON representation of a Message.
const (
	PartTypeText         = "text"
	PartTypeToolCall     = "tool_call"
	PartTypeToolResponse = "tool_response"
)

// messageJSON is the wire form of a Message.
// A message with a single text part is written in the short form with Text set.
type messageJSON struct {
	Role  Role              `json:"role"`
	Text  string            `json:"text,omitempty"`
	Parts []json.RawMessage `json:"parts,omitempty"`
}

// partJSON represents the JSON structure for content parts
type partJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

// ParseRole returns the Role for the value,
// accepting the OpenAI style names as aliases.
func ParseRole(s string) (Role, error) {
	switch s {
	case "human", "user":
		return RoleHuman, nil
	case "ai", "assistant":
		return RoleAI, nil
	case "system", "developer":
		return RoleSystem, nil
	case "tool":
		return RoleTool, nil
	}
	return "", errors.WithMessagef(ErrUnexpectedRole, "%q", s)
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok && tp.Text != "" {
			return json.Marshal(messageJSON{Role: m.Role, Text: tp.Text})
		}
	}

	res := messageJSON{
		Role:  m.Role,
		Parts: make([]json.RawMessage, 0, len(m.Parts)),
	}
	for _, part := range m.Parts {
		var pj partJSON
		switch p := part.(type) {
		case TextContent:
			pj = partJSON{Type: PartTypeText, Text: p.Text}
		case ToolCall:
			pj = partJSON{Type: PartTypeToolCall, ToolCall: &p}
		case ToolCallResponse:
			pj = partJSON{Type: PartTypeToolResponse, ToolResponse: &p}
		default:
			return nil, errors.Errorf("unsupported part type: %T", part)
		}
		js, err := json.Marshal(pj)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		res.Parts = append(res.Parts, js)
	}
	return json.Marshal(res)
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  string            `json:"role"`
		Text  string            `json:"text"`
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}

	role, err := ParseRole(raw.Role)
	if err != nil {
		return err
	}
	m.Role = role
	m.Parts = nil

	if raw.Text != "" {
		m.Parts = []ContentPart{TextContent{Text: raw.Text}}
		return nil
	}

	for _, rp := range raw.Parts {
		var pj partJSON
		if err := json.Unmarshal(rp, &pj); err != nil {
			return errors.WithStack(err)
		}
		switch pj.Type {
		case PartTypeText:
			m.Parts = append(m.Parts, TextContent{Text: pj.Text})
		case PartTypeToolCall:
			if pj.ToolCall == nil {
				return errors.New("missing tool_call")
			}
			m.Parts = append(m.Parts, *pj.ToolCall)
		case PartTypeToolResponse:
			if pj.ToolResponse == nil {
				return errors.New("missing tool_response")
			}
			m.Parts = append(m.Parts, *pj.ToolResponse)
		default:
			return errors.Errorf("unknown part type: %q", pj.Type)
		}
	}
	return nil
}
