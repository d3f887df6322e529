package multivec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConsistencyMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ConsistencyMode
		wantErr bool
	}{
		{in: "hogwild", want: ConsistencyHogwild},
		{in: "", want: ConsistencyHogwild},
		{in: "locked", want: ConsistencyLocked},
		{in: "sync", want: ConsistencyLocked},
		{in: "serial", wantErr: true},
		{in: "Hogwild", wantErr: true},
	}

	for _, tc := range tests {
		t.Run("input_"+tc.in, func(t *testing.T) {
			mode, err := ParseConsistencyMode(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, mode)
		})
	}
}

func TestConsistencyModeString(t *testing.T) {
	assert.Equal(t, "hogwild", ConsistencyHogwild.String())
	assert.Equal(t, "locked", ConsistencyLocked.String())
	assert.Equal(t, "consistency(9)", ConsistencyMode(9).String())
}

func TestParseVectorPolicy(t *testing.T) {
	for code, want := range map[int]VectorPolicy{
		0: PolicyInput,
		1: PolicyConcat,
		2: PolicySum,
		3: PolicyOutput,
	} {
		p, err := ParseVectorPolicy(code)
		require.NoError(t, err)
		assert.Equal(t, want, p)
	}

	_, err := ParseVectorPolicy(-1)
	require.Error(t, err)
	_, err = ParseVectorPolicy(4)
	require.Error(t, err)
}

func TestVectorPolicyString(t *testing.T) {
	assert.Equal(t, "input", PolicyInput.String())
	assert.Equal(t, "concat", PolicyConcat.String())
	assert.Equal(t, "sum", PolicySum.String())
	assert.Equal(t, "output", PolicyOutput.String())
}
