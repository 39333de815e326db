package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-a", "http://api:5000", "-x", "1"},
			allowed: []string{"-a"},
			want:    []string{"-a", "http://api:5000"},
		},
		{
			name:    "equals form",
			args:    []string{"--config=alt.json", "-a", "localhost"},
			allowed: []string{"--config"},
			want:    []string{"--config=alt.json"},
		},
		{
			name:    "unknown flags dropped",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "flag at end without value",
			args:    []string{"-t"},
			allowed: []string{"-t"},
			want:    []string{"-t"},
		},
		{
			name:    "next dash token is not a value",
			args:    []string{"-c", "-l", "debug"},
			allowed: []string{"-c", "-l"},
			want:    []string{"-c", "-l", "debug"},
		},
		{
			name:    "order preserved",
			args:    []string{"-l", "warn", "-d", "voice.db"},
			allowed: []string{"-d", "-l"},
			want:    []string{"-l", "warn", "-d", "voice.db"},
		},
		{
			name:    "empty",
			args:    nil,
			allowed: []string{"-c"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "a.json", ConfigPath([]string{"-c", "a.json", "-a", "x"}))
	assert.Equal(t, "b.json", ConfigPath([]string{"-config", "b.json"}))
	assert.Equal(t, "c.json", ConfigPath([]string{"-config=c.json"}))
	assert.Equal(t, "", ConfigPath([]string{"-a", "http://x"}))
}
