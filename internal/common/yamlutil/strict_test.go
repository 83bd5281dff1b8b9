package yamlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
}

func TestUnmarshalStrict(t *testing.T) {
	var s sample
	require.NoError(t, UnmarshalStrict([]byte("server:\n  listen: \":8050\"\n"), &s))
	assert.Equal(t, ":8050", s.Server.Listen)
}

func TestUnmarshalStrict_UnknownField(t *testing.T) {
	var s sample
	err := UnmarshalStrict([]byte("server:\n  listne: \":8050\"\n"), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration field")
}

func TestUnmarshalStrict_Empty(t *testing.T) {
	var s sample
	err := UnmarshalStrict([]byte(""), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
