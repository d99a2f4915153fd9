package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// NetSuiteRef is the `{id, refName}` shape NetSuite uses for list/record
// reference fields.
type NetSuiteRef struct {
	ID      string `json:"id"`
	RefName string `json:"refName"`
}

// NetSuiteValue is a decoded NetSuite field. A field is either a scalar
// (string, number, bool), a reference object, or absent. Anything else
// (arrays, objects without refName, null) decodes as absent.
type NetSuiteValue struct {
	ref    *NetSuiteRef
	scalar *string
}

// UnmarshalJSON decodes a NetSuite field without assuming its shape.
// It never fails: unknown shapes leave the value absent.
func (v *NetSuiteValue) UnmarshalJSON(data []byte) error {
	*v = NetSuiteValue{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil
		}
		rawName, ok := probe["refName"]
		if !ok {
			return nil
		}
		ref := &NetSuiteRef{}
		var name NetSuiteValue
		_ = name.UnmarshalJSON(rawName)
		if name.scalar != nil {
			ref.RefName = *name.scalar
		}
		if rawID, ok := probe["id"]; ok {
			var id NetSuiteValue
			_ = id.UnmarshalJSON(rawID)
			if id.scalar != nil {
				ref.ID = *id.scalar
			}
		}
		v.ref = ref
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			v.scalar = &s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err == nil {
			s := strconv.FormatBool(b)
			v.scalar = &s
		}
	case 'n':
		// null
	case '[':
		// arrays are not a field shape we project
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			s := n.String()
			v.scalar = &s
		}
	}
	return nil
}

// IsRef reports whether the value was a reference object.
func (v NetSuiteValue) IsRef() bool { return v.ref != nil }

// Ref returns the reference object, if any.
func (v NetSuiteValue) Ref() (NetSuiteRef, bool) {
	if v.ref == nil {
		return NetSuiteRef{}, false
	}
	return *v.ref, true
}

// Text projects the value to its stored form: the refName of a reference,
// the textual form of a scalar, or nil when absent.
func (v NetSuiteValue) Text() *string {
	if v.ref != nil {
		s := v.ref.RefName
		return &s
	}
	if v.scalar != nil {
		s := *v.scalar
		return &s
	}
	return nil
}

// NetSuiteRecord is a raw NetSuite record as returned by the REST record API.
// The original bytes of every property are kept so the record can be
// re-encoded verbatim.
type NetSuiteRecord map[string]json.RawMessage

// Field decodes a single property of the record.
func (r NetSuiteRecord) Field(key string) NetSuiteValue {
	var v NetSuiteValue
	if raw, ok := r[key]; ok {
		_ = v.UnmarshalJSON(raw)
	}
	return v
}

// Text is shorthand for r.Field(key).Text().
func (r NetSuiteRecord) Text(key string) *string {
	return r.Field(key).Text()
}

// ID returns the record's internal id when present.
func (r NetSuiteRecord) ID() string {
	if s := r.Text("id"); s != nil {
		return *s
	}
	return ""
}
