package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"INFO", INFO},
		{"WARN", WARN},
		{"WARNING", WARN},
		{"ERROR", ERROR},
		{"", INFO},
		{"bogus", INFO},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriter(&buf, WARN)

	l.Debugf("nope %d", 1)
	l.Infof("nope %d", 2)
	l.Warnf("yes %d", 3)
	l.Errorf("yes %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "nope")
	assert.Contains(t, out, "[WARN]  yes 3")
	assert.Contains(t, out, "[ERROR] yes 4")
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	// Must not panic and must stay silent.
	l := Discard()
	l.Errorf("dropped")
}
