package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"extension.lifecycle", "extension.lifecycle", true},
		{"extension.lifecycle", "extension.*", true},
		{"extension.lifecycle", "*.lifecycle", true},
		{"extension.lifecycle", "*", false},
		{"extension.lifecycle", "**", true},
		{"window.message", "window.**", true},
		{"window", "window.**", true},
		{"window.statusbar.changed", "window.*", false},
		{"window.statusbar.changed", "window.**", true},
		{"window.statusbar.changed", "**.changed", true},
		{"terminal.sendText", "window.*", false},
		{"a.b.c", "a.**.c", true},
		{"a.c", "a.**.c", true},
		{"a.b", "a.b.c", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.topic)+"~"+string(tt.pattern), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Matches(tt.pattern))
		})
	}
}

func TestTopicValid(t *testing.T) {
	assert.True(t, Topic("a.b").Valid())
	assert.False(t, Topic("").Valid())
	assert.False(t, Topic("a..b").Valid())
	assert.False(t, Topic(".a").Valid())
}

func TestTopicIsPattern(t *testing.T) {
	assert.True(t, Topic("a.*").IsPattern())
	assert.True(t, Topic("**").IsPattern())
	assert.False(t, Topic("a.b").IsPattern())
}
