package common

import (
	"math"
	"testing"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueFromRemoteObject(t *testing.T) {
	t.Parallel()

	t.Run("unserializable", func(t *testing.T) {
		t.Parallel()

		for uv, check := range map[cdpruntime.UnserializableValue]func(any) bool{
			"-0":        func(v any) bool { f, _ := v.(float64); return f == 0 && math.Signbit(f) },
			"NaN":       func(v any) bool { f, _ := v.(float64); return math.IsNaN(f) },
			"Infinity":  func(v any) bool { f, _ := v.(float64); return math.IsInf(f, 1) },
			"-Infinity": func(v any) bool { f, _ := v.(float64); return math.IsInf(f, -1) },
			"123n":      func(v any) bool { return v == "123" },
		} {
			v, err := valueFromRemoteObject(&cdpruntime.RemoteObject{
				Type:                cdpruntime.TypeNumber,
				UnserializableValue: uv,
			})
			require.NoError(t, err, uv)
			assert.True(t, check(v), "%s gave %v", uv, v)
		}

		_, err := valueFromRemoteObject(&cdpruntime.RemoteObject{UnserializableValue: "weird"})
		var uverr UnserializableValueError
		require.ErrorAs(t, err, &uverr)
		assert.Equal(t, cdpruntime.UnserializableValue("weird"), uverr.UnserializableValue)
	})

	for name, tt := range map[string]struct {
		obj  *cdpruntime.RemoteObject
		want any
	}{
		"nil":       {nil, nil},
		"undefined": {&cdpruntime.RemoteObject{Type: cdpruntime.TypeUndefined}, nil},
		"null":      {&cdpruntime.RemoteObject{Type: cdpruntime.TypeObject, Subtype: cdpruntime.SubtypeNull, Value: easyjson.RawMessage("null")}, nil},
		"number":    {&cdpruntime.RemoteObject{Type: cdpruntime.TypeNumber, Value: easyjson.RawMessage("1.5")}, 1.5},
		"string":    {&cdpruntime.RemoteObject{Type: cdpruntime.TypeString, Value: easyjson.RawMessage(`"a"`)}, "a"},
		"object":    {&cdpruntime.RemoteObject{Type: cdpruntime.TypeObject, Value: easyjson.RawMessage(`{"k":[1,true]}`)}, map[string]any{"k": []any{float64(1), true}}},
		"function":  {&cdpruntime.RemoteObject{Type: cdpruntime.TypeFunction, Description: "() => 1"}, "function()"},
		"symbol":    {&cdpruntime.RemoteObject{Type: cdpruntime.TypeSymbol, Description: "Symbol(x)"}, "Symbol(x)"},
		"no_value":  {&cdpruntime.RemoteObject{Type: cdpruntime.TypeObject}, nil},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v, err := valueFromRemoteObject(tt.obj)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParseExceptionDetails(t *testing.T) {
	t.Parallel()

	assert.Nil(t, parseExceptionDetails(nil))

	se := parseExceptionDetails(&cdpruntime.ExceptionDetails{
		Text:         "Uncaught",
		LineNumber:   1,
		ColumnNumber: 4,
		Exception:    &cdpruntime.RemoteObject{Type: cdpruntime.TypeString, Value: easyjson.RawMessage(`"boom"`)},
	})
	require.NotNil(t, se)
	assert.Equal(t, "Uncaught boom", se.Description)
	assert.Equal(t, "script error at 1:4: Uncaught boom", se.Error())

	se = parseExceptionDetails(&cdpruntime.ExceptionDetails{Text: "Uncaught SyntaxError: Invalid or unexpected token"})
	require.NotNil(t, se)
	assert.Empty(t, se.Description)
	assert.Equal(t, "Uncaught SyntaxError: Invalid or unexpected token", se.Message())
}
