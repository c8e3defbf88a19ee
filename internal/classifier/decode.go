package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedResponse marks classifier output that does not fit the action union.
var ErrMalformedResponse = errors.New("malformed classifier response")

const actionSchema = `{
  "oneOf": [
    {
      "type": "object",
      "properties": {
        "write_result": {
          "type": "object",
          "properties": {
            "data": {
              "type": "object",
              "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
            }
          },
          "required": ["data"],
          "additionalProperties": false
        }
      },
      "required": ["write_result"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {
        "crawl_page": {
          "type": "object",
          "properties": {"url": {"type": "string", "minLength": 1}},
          "required": ["url"],
          "additionalProperties": false
        }
      },
      "required": ["crawl_page"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {
        "decision": {"enum": ["FOLLOW", "REJECT", "STOP"]},
        "targets": {"type": "array", "items": {"type": "string"}},
        "reason": {"type": "string"}
      },
      "required": ["decision"],
      "additionalProperties": false
    },
    {"type": "object", "maxProperties": 0}
  ]
}`

const selectionSchema = `{
  "type": "object",
  "properties": {
    "valid_urls": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["valid_urls"]
}`

var (
	schemaOnce     sync.Once
	compiledAction *gojsonschema.Schema
	compiledSelect *gojsonschema.Schema
	schemaErr      error
)

func schemas() (*gojsonschema.Schema, *gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledAction, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(actionSchema))
		if schemaErr != nil {
			return
		}
		compiledSelect, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(selectionSchema))
	})
	return compiledAction, compiledSelect, schemaErr
}

type wireAction struct {
	WriteResult *struct {
		Data map[string]any `json:"data"`
	} `json:"write_result"`
	CrawlPage *struct {
		URL string `json:"url"`
	} `json:"crawl_page"`
	Decision string   `json:"decision"`
	Targets  []string `json:"targets"`
	Reason   string   `json:"reason"`
}

// DecodeAction validates raw against the action union and converts it.
// Empty output decodes to ActionNone. Anything else that fails validation
// returns an error wrapping ErrMalformedResponse.
func DecodeAction(raw []byte) (Action, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Action{Kind: ActionNone}, nil
	}
	schema, _, err := schemas()
	if err != nil {
		return Action{}, fmt.Errorf("compile action schema: %w", err)
	}
	if err := validate(schema, raw); err != nil {
		return Action{}, err
	}

	var wire wireAction
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case wire.WriteResult != nil:
		return Action{Kind: ActionWriteResult, Data: stringifyData(wire.WriteResult.Data)}, nil
	case wire.CrawlPage != nil:
		return Action{Kind: ActionCrawlPage, URL: strings.TrimSpace(wire.CrawlPage.URL)}, nil
	case wire.Decision != "":
		return Action{
			Kind:    ActionKind(wire.Decision),
			Targets: trimTargets(wire.Targets),
			Reason:  strings.TrimSpace(wire.Reason),
		}, nil
	default:
		return Action{Kind: ActionNone}, nil
	}
}

// DecodeSelection reads a {"valid_urls": [...]} link selection.
func DecodeSelection(raw []byte) ([]string, error) {
	_, schema, err := schemas()
	if err != nil {
		return nil, fmt.Errorf("compile selection schema: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if err := validate(schema, raw); err != nil {
		return nil, err
	}
	var payload struct {
		ValidURLs []string `json:"valid_urls"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return trimTargets(payload.ValidURLs), nil
}

func validate(schema *gojsonschema.Schema, raw []byte) error {
	if !json.Valid(raw) {
		return fmt.Errorf("%w: not valid json", ErrMalformedResponse)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		msgs = append(msgs, field+": "+desc.Description())
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(msgs, "; "))
}

func stringifyData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for key, value := range data {
		var s string
		switch v := value.(type) {
		case nil:
			continue
		case string:
			s = v
		case json.Number:
			s = v.String()
		case bool:
			s = strconv.FormatBool(v)
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			out[key] = s
		}
	}
	return out
}

func trimTargets(in []string) []string {
	out := make([]string, 0, len(in))
	for _, target := range in {
		if t := strings.TrimSpace(target); t != "" {
			out = append(out, t)
		}
	}
	return out
}
