package rule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Executable(t *testing.T) {
	t.Run("static has no code", func(t *testing.T) {
		_, ok := Static("Acme").Executable()
		assert.False(t, ok)
	})

	t.Run("script returns its code", func(t *testing.T) {
		code, ok := Script(`return "x"`).Executable()
		assert.True(t, ok)
		assert.Equal(t, `return "x"`, code)
	})

	t.Run("prompt returns generated code, never the prompt", func(t *testing.T) {
		code, ok := Prompt("make it loud", "return 1", "note").Executable()
		assert.True(t, ok)
		assert.Equal(t, "return 1", code)
	})
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{"static empty value is allowed", Static(""), ""},
		{"script requires code", Script(""), "requires code"},
		{"prompt with code", Prompt("", "return 1", ""), ""},
		{"prompt with nothing", Prompt("", "", ""), "requires a prompt"},
		{"missing type", Rule{}, "type is required"},
		{"unknown type", Rule{Kind: "macro"}, "unknown rule type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRule_UnmarshalJSON(t *testing.T) {
	t.Run("untyped save body decodes as prompt rule", func(t *testing.T) {
		var r Rule
		err := json.Unmarshal([]byte(`{"prompt":"p","generated_code":"c","ai_response":"raw"}`), &r)
		require.NoError(t, err)
		assert.Equal(t, KindPrompt, r.Kind)
		assert.Equal(t, "c", r.GeneratedCode)
		assert.Equal(t, "raw", r.ModelNote)
	})

	t.Run("explicit type wins", func(t *testing.T) {
		var r Rule
		err := json.Unmarshal([]byte(`{"type":"static","value":"Acme"}`), &r)
		require.NoError(t, err)
		assert.Equal(t, Static("Acme"), r)
	})

	t.Run("untyped code decodes as script", func(t *testing.T) {
		var r Rule
		require.NoError(t, json.Unmarshal([]byte(`{"code":"return 1"}`), &r))
		assert.Equal(t, KindScript, r.Kind)
	})
}

func TestSet_Fields(t *testing.T) {
	s := Set{"b": Static("2"), "a": Static("1")}
	assert.Equal(t, []string{"a", "b"}, s.Fields())
}
