package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ValueParser is implemented by host types built from a raw decoded value
// rather than by plain JSON decoding.
type ValueParser interface {
	ParseValue(raw any) error
}

// schemaCache holds compiled schemas per Go type.
var schemaCache sync.Map

// IsNull reports whether raw represents the "no value" outcome.
func IsNull(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	switch trimmed {
	case "", "null", "undefined", `"null"`:
		return true
	}
	return false
}

// Decode parses plugin output into T. Null output yields ErrNullValue;
// malformed JSON or a shape mismatch yields a *DecodingError. Keys whose
// value is null are treated as absent.
func Decode[T any](raw string) (T, error) {
	var zero T
	typ := reflect.TypeOf((*T)(nil)).Elem()

	if IsNull(raw) {
		return zero, ErrNullValue
	}
	if !gjson.Valid(raw) {
		return zero, &DecodingError{Type: typ.String(), Reason: "malformed JSON"}
	}

	value, err := jschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return zero, &DecodingError{Type: typ.String(), Reason: "malformed JSON", Err: err}
	}
	value = stripNulls(value)

	if typ.Kind() != reflect.Interface {
		sch, err := compiledSchema(typ)
		if err != nil {
			return zero, &DecodingError{Type: typ.String(), Reason: "no schema", Err: err}
		}
		if err := sch.Validate(value); err != nil {
			return zero, schemaError(typ, err)
		}
	}

	cleaned, err := json.Marshal(value)
	if err != nil {
		return zero, &DecodingError{Type: typ.String(), Reason: err.Error(), Err: err}
	}
	var out T
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return zero, &DecodingError{Type: typ.String(), Reason: err.Error(), Err: err}
	}
	return out, nil
}

// DecodeOptional is Decode with the null outcome mapped to nil.
func DecodeOptional[T any](raw string) (*T, error) {
	v, err := Decode[T](raw)
	if errors.Is(err, ErrNullValue) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Encode converts a host value into a plain map safe to hand to plugin
// code. Nil optional fields are left out rather than sent as null.
func Encode(v any) (map[string]any, error) {
	value, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("encode: %T is not an object", v)
	}
	return m, nil
}

// EncodeValue is Encode for values of any shape.
func EncodeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return stripNulls(out), nil
}

// EncodeArgs renders call arguments as a JSON array. A nil argument keeps
// its position as null.
func EncodeArgs(args ...any) (string, error) {
	encoded := make([]any, len(args))
	for i, arg := range args {
		if arg == nil {
			continue
		}
		v, err := EncodeValue(arg)
		if err != nil {
			return "", err
		}
		encoded[i] = v
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stripNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			if item == nil {
				delete(val, k)
				continue
			}
			val[k] = stripNulls(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = stripNulls(item)
		}
		return val
	}
	return v
}

func compiledSchema(typ reflect.Type) (*jschema.Schema, error) {
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(*jschema.Schema), nil
	}

	r := jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	schemaBytes, err := json.Marshal(r.ReflectFromType(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaData); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	schemaCache.Store(typ, sch)
	return sch, nil
}

func schemaError(typ reflect.Type, err error) error {
	de := &DecodingError{Type: typ.String(), Reason: err.Error(), Err: err}
	var ve *jschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		de.Path = "/" + strings.Join(leaf.InstanceLocation, "/")
		if leaf.ErrorKind != nil {
			de.Reason = leaf.ErrorKind.LocalizedString(message.NewPrinter(language.English))
		}
	}
	return de
}
