package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContainerized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		set   bool
		want  bool
	}{
		{name: "unset", want: false},
		{name: "empty", set: true, value: "", want: false},
		{name: "true", set: true, value: "true", want: true},
		{name: "True", set: true, value: "True", want: true},
		{name: "yes", set: true, value: "yes", want: true},
		{name: "Y", set: true, value: "Y", want: true},
		{name: "one", set: true, value: "1", want: true},
		{name: "false", set: true, value: "false", want: false},
		{name: "zero", set: true, value: "0", want: false},
		{name: "no", set: true, value: "no", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := map[string]string{}
			if tt.set {
				m[InDocker] = tt.value
			}
			assert.Equal(t, tt.want, IsContainerized(ConstLookup(m)))
		})
	}
}

func TestMap(t *testing.T) {
	t.Parallel()

	got := Map([]string{"A=1", "B=x=y", "EMPTY=", "=skipped", "A=2", "NOVALUE"})
	assert.Equal(t, map[string]string{"A": "2", "B": "x=y", "EMPTY": "", "NOVALUE": ""}, got)
}
