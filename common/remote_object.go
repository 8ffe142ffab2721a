package common

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	cdpruntime "github.com/chromedp/cdproto/runtime"
)

// UnserializableValueError is returned for an unserializable value that has
// no Go counterpart.
type UnserializableValueError struct {
	UnserializableValue cdpruntime.UnserializableValue
}

func (e UnserializableValueError) Error() string {
	return fmt.Sprintf("unsupported unserializable value: %s", e.UnserializableValue)
}

// valueFromRemoteObject converts a by-value remote object to Go: numbers
// are float64, objects and arrays are maps and slices, undefined is nil.
func valueFromRemoteObject(obj *cdpruntime.RemoteObject) (any, error) {
	if obj == nil {
		return nil, nil
	}
	if obj.UnserializableValue != "" {
		return parseUnserializableValue(obj.UnserializableValue)
	}

	switch obj.Type {
	case cdpruntime.TypeUndefined:
		return nil, nil
	case cdpruntime.TypeFunction:
		return "function()", nil
	case cdpruntime.TypeSymbol:
		return obj.Description, nil
	}
	if len(obj.Value) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(obj.Value, &v); err != nil {
		return nil, fmt.Errorf("decoding %s value: %w", obj.Type, err)
	}
	return v, nil
}

func parseUnserializableValue(uv cdpruntime.UnserializableValue) (any, error) {
	switch s := uv.String(); s {
	case "-0": // To handle +0 divided by negative number
		return math.Float64frombits(0 | (1 << 63)), nil
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(0), nil
	case "-Infinity":
		return math.Inf(-1), nil
	default:
		if strings.HasSuffix(s, "n") {
			// bigint, kept as its decimal string
			return strings.TrimSuffix(s, "n"), nil
		}
	}

	return nil, UnserializableValueError{uv}
}

// parseExceptionDetails turns exception details into a ScriptError. It
// returns nil when there was no exception.
func parseExceptionDetails(exc *cdpruntime.ExceptionDetails) *ScriptError {
	if exc == nil {
		return nil
	}
	se := &ScriptError{
		Text:         exc.Text,
		LineNumber:   exc.LineNumber,
		ColumnNumber: exc.ColumnNumber,
	}
	if exc.Exception != nil {
		se.Description = exc.Exception.Description
		if se.Description == "" {
			// A thrown primitive, e.g. throw "boom", has no description.
			if v, err := valueFromRemoteObject(exc.Exception); err == nil && v != nil {
				se.Description = fmt.Sprintf("%s %v", exc.Text, v)
			}
		}
	}
	return se
}
