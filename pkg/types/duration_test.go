package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "seconds", input: "30s", want: 30 * time.Second},
		{name: "minutes", input: "5m", want: 5 * time.Minute},
		{name: "hours", input: "2h", want: 2 * time.Hour},
		{name: "milliseconds", input: "250ms", want: 250 * time.Millisecond},
		{name: "days", input: "30d", want: 30 * 24 * time.Hour},
		{name: "weeks", input: "2w", want: 14 * 24 * time.Hour},
		{name: "fractional days", input: "1.5d", want: 36 * time.Hour},
		{name: "compound", input: "1h30m", want: 90 * time.Minute},
		{name: "negative extended", input: "-3d", wantErr: true},
		{name: "garbage", input: "soon", wantErr: true},
		{name: "bare number", input: "42", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := yaml.Unmarshal([]byte(`"`+tt.input+`"`), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, time.Duration(d))
		})
	}
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	original := Duration(90 * time.Second)

	data, err := yaml.Marshal(original)
	require.NoError(t, err)

	var parsed Duration
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, original, parsed)
}

func TestDurationUnmarshalJSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"15s"`), &d))
	assert.Equal(t, 15*time.Second, time.Duration(d))

	// numbers are nanoseconds
	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, time.Duration(d))

	require.NoError(t, json.Unmarshal([]byte(`"1w"`), &d))
	assert.Equal(t, 7*24*time.Hour, time.Duration(d))

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
	assert.Error(t, json.Unmarshal([]byte(`"never"`), &d))
}

func TestDurationMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Duration(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(data))
}
