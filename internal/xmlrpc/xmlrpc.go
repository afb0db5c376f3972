// Package xmlrpc implements the small subset of XML-RPC used by the legacy
// session-claim protocol: a method call carrying one struct parameter, and a
// response carrying one struct with string, integer, boolean, struct and
// array members.
package xmlrpc

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/allisson/gridgate/internal/errors"
)

// Struct is an XML-RPC struct value.
type Struct map[string]any

// Array is an XML-RPC array value.
type Array []any

// Request is a decoded method call.
type Request struct {
	Method string
	// Params holds the decoded parameters; the claim protocol sends a single
	// struct.
	Params []any
}

// StructParam returns the first parameter as a struct, or an empty struct
// when the call carried none.
func (r *Request) StructParam() Struct {
	if len(r.Params) == 0 {
		return Struct{}
	}
	if s, ok := r.Params[0].(Struct); ok {
		return s
	}
	return Struct{}
}

// String returns the named struct member as a string, with a fallback.
func (s Struct) String(name, fallback string) string {
	if v, ok := s[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

// DecodeRequest parses a method call from r.
func DecodeRequest(r io.Reader) (*Request, error) {
	decoder := xml.NewDecoder(r)
	request := &Request{}

	if err := expectStart(decoder, "methodCall"); err != nil {
		return nil, err
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return request, nil
			}
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed method call: "+err.Error())
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "methodName":
			var name string
			if err := decoder.DecodeElement(&name, &start); err != nil {
				return nil, errors.Wrap(errors.ErrInvalidInput, "malformed method name: "+err.Error())
			}
			request.Method = name
		case "value":
			value, err := decodeValue(decoder)
			if err != nil {
				return nil, err
			}
			request.Params = append(request.Params, value)
		}
	}
}

// EncodeCall writes a method call carrying one value parameter.
func EncodeCall(w io.Writer, method string, value any) error {
	if _, err := io.WriteString(w, xml.Header+"<methodCall>"); err != nil {
		return errors.Wrap(err, "failed to write method call")
	}
	if err := writeEscaped(w, "methodName", method); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "<params><param>"); err != nil {
		return errors.Wrap(err, "failed to write method call")
	}
	if err := encodeValue(w, value); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "</param></params></methodCall>"); err != nil {
		return errors.Wrap(err, "failed to write method call")
	}
	return nil
}

// DecodeResponse parses a method response from r and returns its single
// value. A fault response is returned as an error.
func DecodeResponse(r io.Reader) (any, error) {
	decoder := xml.NewDecoder(r)

	if err := expectStart(decoder, "methodResponse"); err != nil {
		return nil, err
	}

	inFault := false
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed method response: "+err.Error())
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "fault":
			inFault = true
		case "value":
			value, err := decodeValue(decoder)
			if err != nil {
				return nil, err
			}
			if inFault {
				fault, _ := value.(Struct)
				code, _ := fault["faultCode"].(int)
				message, _ := fault["faultString"].(string)
				return nil, errors.Wrapf(errors.ErrUnavailable, "remote fault %d: %s", code, message)
			}
			return value, nil
		}
	}
}

// EncodeResponse writes a method response carrying one value.
func EncodeResponse(w io.Writer, value any) error {
	if _, err := io.WriteString(w, xml.Header+"<methodResponse><params><param>"); err != nil {
		return errors.Wrap(err, "failed to write response")
	}
	if err := encodeValue(w, value); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "</param></params></methodResponse>"); err != nil {
		return errors.Wrap(err, "failed to write response")
	}
	return nil
}

// EncodeFault writes a fault response.
func EncodeFault(w io.Writer, code int, message string) error {
	if _, err := io.WriteString(w, xml.Header+"<methodResponse><fault>"); err != nil {
		return errors.Wrap(err, "failed to write fault")
	}
	fault := Struct{"faultCode": code, "faultString": message}
	if err := encodeValue(w, fault); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "</fault></methodResponse>"); err != nil {
		return errors.Wrap(err, "failed to write fault")
	}
	return nil
}

func encodeValue(w io.Writer, value any) error {
	if _, err := io.WriteString(w, "<value>"); err != nil {
		return errors.Wrap(err, "failed to write value")
	}

	var err error
	switch v := value.(type) {
	case string:
		err = writeEscaped(w, "string", v)
	case int:
		_, err = fmt.Fprintf(w, "<i4>%d</i4>", v)
	case int32:
		_, err = fmt.Fprintf(w, "<i4>%d</i4>", v)
	case int64:
		_, err = fmt.Fprintf(w, "<i4>%d</i4>", v)
	case bool:
		boolean := "0"
		if v {
			boolean = "1"
		}
		_, err = fmt.Fprintf(w, "<boolean>%s</boolean>", boolean)
	case Struct:
		err = encodeStruct(w, v)
	case Array:
		err = encodeArray(w, v)
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unsupported value type %T", value)
	}
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, "</value>"); err != nil {
		return errors.Wrap(err, "failed to write value")
	}
	return nil
}

func encodeStruct(w io.Writer, s Struct) error {
	if _, err := io.WriteString(w, "<struct>"); err != nil {
		return errors.Wrap(err, "failed to write struct")
	}
	for _, name := range sortedKeys(s) {
		if _, err := io.WriteString(w, "<member>"); err != nil {
			return errors.Wrap(err, "failed to write member")
		}
		if err := writeEscaped(w, "name", name); err != nil {
			return err
		}
		if err := encodeValue(w, s[name]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "</member>"); err != nil {
			return errors.Wrap(err, "failed to write member")
		}
	}
	if _, err := io.WriteString(w, "</struct>"); err != nil {
		return errors.Wrap(err, "failed to write struct")
	}
	return nil
}

func encodeArray(w io.Writer, values Array) error {
	if _, err := io.WriteString(w, "<array><data>"); err != nil {
		return errors.Wrap(err, "failed to write array")
	}
	for _, value := range values {
		if err := encodeValue(w, value); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "</data></array>"); err != nil {
		return errors.Wrap(err, "failed to write array")
	}
	return nil
}

func writeEscaped(w io.Writer, element, text string) error {
	if _, err := fmt.Fprintf(w, "<%s>", element); err != nil {
		return errors.Wrap(err, "failed to write element")
	}
	if err := xml.EscapeText(w, []byte(text)); err != nil {
		return errors.Wrap(err, "failed to escape text")
	}
	if _, err := fmt.Fprintf(w, "</%s>", element); err != nil {
		return errors.Wrap(err, "failed to write element")
	}
	return nil
}

// decodeValue parses the contents of a <value> element, positioned just after
// its start tag, consuming through its end tag.
func decodeValue(decoder *xml.Decoder) (any, error) {
	var text string
	var value any
	hasTyped := false

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed value: "+err.Error())
		}

		switch t := token.(type) {
		case xml.CharData:
			text += string(t)
		case xml.StartElement:
			typed, err := decodeTypedValue(decoder, t)
			if err != nil {
				return nil, err
			}
			value = typed
			hasTyped = true
		case xml.EndElement:
			if t.Name.Local == "value" {
				if hasTyped {
					return value, nil
				}
				// A bare value with no type element is a string.
				return text, nil
			}
		}
	}
}

func decodeTypedValue(decoder *xml.Decoder, start xml.StartElement) (any, error) {
	switch start.Name.Local {
	case "string":
		var s string
		if err := decoder.DecodeElement(&s, &start); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed string value: "+err.Error())
		}
		return s, nil
	case "i4", "int":
		var s string
		if err := decoder.DecodeElement(&s, &start); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed integer value: "+err.Error())
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed integer value: "+err.Error())
		}
		return n, nil
	case "boolean":
		var s string
		if err := decoder.DecodeElement(&s, &start); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed boolean value: "+err.Error())
		}
		return s == "1", nil
	case "struct":
		return decodeStruct(decoder)
	case "array":
		return decodeArray(decoder, start)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported value element %q", start.Name.Local)
	}
}

func decodeStruct(decoder *xml.Decoder) (Struct, error) {
	s := Struct{}
	var memberName string

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed struct: "+err.Error())
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if err := decoder.DecodeElement(&memberName, &t); err != nil {
					return nil, errors.Wrap(errors.ErrInvalidInput, "malformed member name: "+err.Error())
				}
			case "value":
				value, err := decodeValue(decoder)
				if err != nil {
					return nil, err
				}
				s[memberName] = value
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return s, nil
			}
		}
	}
}

func decodeArray(decoder *xml.Decoder, start xml.StartElement) (Array, error) {
	values := Array{}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed array: "+err.Error())
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				value, err := decodeValue(decoder)
				if err != nil {
					return nil, err
				}
				values = append(values, value)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return values, nil
			}
		}
	}
}

func expectStart(decoder *xml.Decoder, name string) error {
	for {
		token, err := decoder.Token()
		if err != nil {
			return errors.Wrapf(errors.ErrInvalidInput, "expected %s element: %s", name, err.Error())
		}
		if start, ok := token.(xml.StartElement); ok {
			if start.Name.Local != name {
				return errors.Wrapf(errors.ErrInvalidInput, "expected %s element, got %s", name, start.Name.Local)
			}
			return nil
		}
	}
}

func sortedKeys(s Struct) []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	// Deterministic member order keeps responses stable for tests and logs.
	sort.Strings(keys)
	return keys
}
