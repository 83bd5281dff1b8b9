package configtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListenAddress(t *testing.T) {
	tests := []struct {
		name     string
		listen   string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "port only with colon", listen: ":8050", wantPort: 8050},
		{name: "port only without colon", listen: "8050", wantPort: 8050},
		{name: "all interfaces", listen: "0.0.0.0:8050", wantHost: "0.0.0.0", wantPort: 8050},
		{name: "localhost", listen: "localhost:9090", wantHost: "localhost", wantPort: 9090},
		{name: "empty string", listen: "", wantErr: true},
		{name: "garbage", listen: "render", wantErr: true},
		{name: "non-numeric port", listen: "localhost:http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := ParseListenAddress(tt.listen)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestValidateListenAddress(t *testing.T) {
	assert.NoError(t, ValidateListenAddress(":8050"))
	assert.NoError(t, ValidateListenAddress("127.0.0.1:65535"))
	assert.Error(t, ValidateListenAddress(":0"))
	assert.Error(t, ValidateListenAddress(":70000"))
	assert.Error(t, ValidateListenAddress(""))
}

func TestGetPortFromListen(t *testing.T) {
	port, err := GetPortFromListen("0.0.0.0:9091")
	require.NoError(t, err)
	assert.Equal(t, 9091, port)
}
