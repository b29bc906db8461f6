// Package encoding provides the output formats of the command line.
package encoding

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Format of encoded documents
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Formats lists the supported formats
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML}

// ParseFormat returns the format by name, case insensitive.
// Empty name is JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", errors.Errorf("unsupported format: %s", s)
}

// Marshal encodes v in the format.
// JSON is indented; TOML requires v to be a struct or a map.
func Marshal(f Format, v any) ([]byte, error) {
	var (
		bs  []byte
		err error
	)
	switch f {
	case FormatJSON, "":
		bs, err = json.MarshalIndent(v, "", "  ")
		if err == nil {
			bs = append(bs, '\n')
		}
	case FormatYAML:
		var b bytes.Buffer
		enc := yaml.NewEncoder(&b)
		enc.SetIndent(2)
		if err = enc.Encode(v); err == nil {
			err = enc.Close()
		}
		bs = b.Bytes()
	case FormatTOML:
		bs, err = toml.Marshal(v)
	default:
		return nil, errors.Errorf("unsupported format: %s", f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", f)
	}
	return bs, nil
}

// Write encodes v in the format to w.
func Write(w io.Writer, f Format, v any) error {
	bs, err := Marshal(f, v)
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return errors.WithStack(err)
}
