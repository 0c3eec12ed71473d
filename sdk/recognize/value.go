package recognize

import (
	"errors"
	"strconv"

	"github.com/tidwall/gjson"
)

// Kind tags the JSON type held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	List
	Object
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case List:
		return "list"
	case Object:
		return "object"
	default:
		return "null"
	}
}

// Value is a decoded JSON value from the recognition endpoint.
type Value struct {
	kind   Kind
	raw    string
	str    string
	num    float64
	b      bool
	list   []Value
	object map[string]Value
}

func valueOf(r gjson.Result) Value {
	v := Value{raw: r.Raw}
	switch r.Type {
	case gjson.True, gjson.False:
		v.kind = Bool
		v.b = r.Type == gjson.True
	case gjson.Number:
		v.kind = Number
		v.num = r.Num
	case gjson.String:
		v.kind = String
		v.str = r.Str
	case gjson.JSON:
		if r.IsArray() {
			v.kind = List
			for _, elem := range r.Array() {
				v.list = append(v.list, valueOf(elem))
			}
			return v
		}
		v.kind = Object
		v.object = make(map[string]Value)
		r.ForEach(func(key, elem gjson.Result) bool {
			v.object[key.String()] = valueOf(elem)
			return true
		})
	default:
		v.kind = Null
		v.raw = "null"
	}
	return v
}

// Kind returns the JSON type of v.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean held by v, false for any other kind.
func (v Value) Bool() bool { return v.b }

// Float returns the number held by v.
func (v Value) Float() float64 { return v.num }

// Int returns the number held by v as an integer. Integral literals are
// parsed exactly; fractional ones are truncated.
func (v Value) Int() int64 {
	if v.kind != Number {
		return 0
	}
	if n, err := strconv.ParseInt(v.raw, 10, 64); err == nil {
		return n
	}
	return int64(v.num)
}

// Text returns the string held by v, empty for any other kind.
func (v Value) Text() string { return v.str }

// List returns the elements held by v.
func (v Value) List() []Value { return v.list }

// Object returns the members held by v.
func (v Value) Object() map[string]Value { return v.object }

// Raw returns the JSON text v was decoded from.
func (v Value) Raw() string { return v.raw }

// String renders v for all-string maps: strings verbatim, numbers and
// booleans as their JSON literal, null as empty, lists and objects as compact
// JSON.
func (v Value) String() string {
	switch v.kind {
	case String:
		return v.str
	case Null:
		return ""
	case List, Object:
		return gjson.Get(v.raw, "@ugly").Raw
	default:
		return v.raw
	}
}

// MarshalJSON emits the JSON text as received.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == "" {
		return []byte("null"), nil
	}
	return []byte(v.raw), nil
}

// RecognitionResult is the JSON object returned by the recognition endpoint.
type RecognitionResult struct {
	raw   []byte
	value Value
}

// ParseRecognitionResult decodes a recognition response body. The body must
// be a JSON object.
func ParseRecognitionResult(body []byte) (*RecognitionResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, errors.New("response is not a JSON object")
	}
	raw := make([]byte, len(body))
	copy(raw, body)
	return &RecognitionResult{raw: raw, value: valueOf(parsed)}, nil
}

// Value returns the whole response object.
func (r *RecognitionResult) Value() Value { return r.value }

// Fields returns the top-level members of the response.
func (r *RecognitionResult) Fields() map[string]Value { return r.value.object }

// Get looks up a gjson path such as "objects.0.name".
func (r *RecognitionResult) Get(path string) (Value, bool) {
	res := gjson.GetBytes(r.raw, path)
	if !res.Exists() {
		return Value{}, false
	}
	return valueOf(res), true
}

// Flatten stringifies every top-level member.
func (r *RecognitionResult) Flatten() map[string]string {
	out := make(map[string]string, len(r.value.object))
	for k, v := range r.value.object {
		out[k] = v.String()
	}
	return out
}

// MarshalJSON emits the response body as received.
func (r *RecognitionResult) MarshalJSON() ([]byte, error) {
	return r.raw, nil
}
