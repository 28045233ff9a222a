package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/casualjim/instruct/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ToJSON encodes an event with a "type" discriminator so FromJSON can restore it.
// Errors are carried as their message.
func ToJSON(event Event) ([]byte, error) {
	if event == nil {
		return nil, errors.New("event is required")
	}

	result, err := marshalHeader(event.Type(), event.Meta())
	if err != nil {
		return nil, err
	}

	switch e := event.(type) {
	case FragmentReceived:
		result, err = setAll(result, field{"index", e.Index}, rawField("fragment", e.Fragment))
	case JSONExtracted:
		result, err = setAll(result, field{"json", e.JSON}, field{"complete", e.Complete})
	case ToolCallStarted:
		result, err = setAll(result, rawField("call", e.Call))
	case ToolCallUpdated:
		result, err = setAll(result, rawField("call", e.Call), field{"partial", e.Partial})
	case ToolCallCompleted:
		result, err = setAll(result, rawField("call", e.Call))
	case PartialObject:
		result, err = setAll(result, rawField("object", e.Object), field{"hash", e.Hash})
	case RecoveryAttempt:
		result, err = setAll(result, field{"error", errorText(e.Err)}, rawField("feedback", e.Feedback))
	case RecoveryLimitReached:
		result, err = setAll(result, field{"attempts", e.Attempts}, field{"error", errorText(e.Err)})
	case FinalObject:
		result, err = setAll(result, rawField("object", e.Object))
	case Error:
		result, err = setAll(result, field{"error", errorText(e.Err)})
	default:
		return nil, fmt.Errorf("unknown event type: %T", event)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type(), err)
	}
	return result, nil
}

// FromJSON decodes an event produced by ToJSON.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	doc := gjson.ParseBytes(data)

	typ := doc.Get("type")
	if !typ.Exists() {
		return nil, errors.New("missing required field 'type'")
	}
	header, err := unmarshalHeader(doc)
	if err != nil {
		return nil, err
	}

	switch typ.String() {
	case FragmentReceived{}.Type():
		e := FragmentReceived{Header: header, Index: int(doc.Get("index").Int())}
		raw, err := required(doc, "fragment")
		if err != nil {
			return nil, err
		}
		if err := e.Fragment.UnmarshalJSON([]byte(raw.Raw)); err != nil {
			return nil, fmt.Errorf("invalid fragment: %w", err)
		}
		return e, nil
	case JSONExtracted{}.Type():
		raw, err := required(doc, "json")
		if err != nil {
			return nil, err
		}
		return JSONExtracted{Header: header, JSON: raw.String(), Complete: doc.Get("complete").Bool()}, nil
	case ToolCallStarted{}.Type():
		call, err := decodeCall(doc)
		if err != nil {
			return nil, err
		}
		return ToolCallStarted{Header: header, Call: call}, nil
	case ToolCallUpdated{}.Type():
		call, err := decodeCall(doc)
		if err != nil {
			return nil, err
		}
		return ToolCallUpdated{Header: header, Call: call, Partial: doc.Get("partial").String()}, nil
	case ToolCallCompleted{}.Type():
		call, err := decodeCall(doc)
		if err != nil {
			return nil, err
		}
		return ToolCallCompleted{Header: header, Call: call}, nil
	case PartialObject{}.Type():
		obj, err := decodeObject(doc)
		if err != nil {
			return nil, err
		}
		return PartialObject{Header: header, Object: obj, Hash: doc.Get("hash").Uint()}, nil
	case RecoveryAttempt{}.Type():
		e := RecoveryAttempt{Header: header, Err: errorFrom(doc)}
		if fb := doc.Get("feedback"); fb.Exists() && fb.Type != gjson.Null {
			if err := json.Unmarshal([]byte(fb.Raw), &e.Feedback); err != nil {
				return nil, fmt.Errorf("invalid feedback: %w", err)
			}
		}
		return e, nil
	case RecoveryLimitReached{}.Type():
		return RecoveryLimitReached{Header: header, Attempts: int(doc.Get("attempts").Int()), Err: errorFrom(doc)}, nil
	case FinalObject{}.Type():
		obj, err := decodeObject(doc)
		if err != nil {
			return nil, err
		}
		return FinalObject{Header: header, Object: obj}, nil
	case Error{}.Type():
		if _, err := required(doc, "error"); err != nil {
			return nil, err
		}
		return Error{Header: header, Err: errorFrom(doc)}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", typ.String())
	}
}

type field struct {
	path  string
	value any
}

type rawValue struct {
	value any
}

func rawField(path string, value any) field {
	return field{path: path, value: rawValue{value: value}}
}

func setAll(result []byte, fields ...field) ([]byte, error) {
	var err error
	for _, f := range fields {
		if raw, ok := f.value.(rawValue); ok {
			var b []byte
			b, err = json.Marshal(raw.value)
			if err != nil {
				return nil, err
			}
			result, err = sjson.SetRawBytes(result, f.path, b)
		} else {
			result, err = sjson.SetBytes(result, f.path, f.value)
		}
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func marshalHeader(typ string, h Header) ([]byte, error) {
	result := []byte(`{}`)
	fields := []field{
		{"type", typ},
		{"run_id", h.RunID.String()},
		{"attempt", h.Attempt},
		{"timestamp", h.Timestamp.String()},
	}
	if h.Sender != "" {
		fields = append(fields, field{"sender", h.Sender})
	}
	return setAll(result, fields...)
}

func unmarshalHeader(doc gjson.Result) (Header, error) {
	var h Header

	runID, err := required(doc, "run_id")
	if err != nil {
		return h, err
	}
	h.RunID, err = uuid.Parse(runID.String())
	if err != nil {
		return h, fmt.Errorf("invalid run_id: %w", err)
	}

	h.Attempt = int(doc.Get("attempt").Int())
	h.Sender = doc.Get("sender").String()

	if ts := doc.Get("timestamp"); ts.Exists() {
		parsed, err := time.Parse(strfmt.RFC3339Millis, ts.String())
		if err != nil {
			dt, perr := strfmt.ParseDateTime(ts.String())
			if perr != nil {
				return h, fmt.Errorf("invalid timestamp: %w", perr)
			}
			h.Timestamp = dt
		} else {
			h.Timestamp = strfmt.DateTime(parsed)
		}
	}
	return h, nil
}

func required(doc gjson.Result, path string) (gjson.Result, error) {
	value := doc.Get(path)
	if !value.Exists() {
		return value, fmt.Errorf("missing required field '%s'", path)
	}
	return value, nil
}

func decodeCall(doc gjson.Result) (provider.ToolCall, error) {
	var call provider.ToolCall
	raw, err := required(doc, "call")
	if err != nil {
		return call, err
	}
	if err := json.Unmarshal([]byte(raw.Raw), &call); err != nil {
		return call, fmt.Errorf("invalid call: %w", err)
	}
	return call, nil
}

func decodeObject(doc gjson.Result) (any, error) {
	raw, err := required(doc, "object")
	if err != nil {
		return nil, err
	}
	var obj any
	if err := json.Unmarshal([]byte(raw.Raw), &obj); err != nil {
		return nil, fmt.Errorf("invalid object: %w", err)
	}
	return obj, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errorFrom(doc gjson.Result) error {
	msg := doc.Get("error").String()
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
