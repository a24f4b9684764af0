package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"trigger 3", Command{Verb: "trigger", Target: 3}},
		{"sleep 1 500", Command{Verb: "sleep", Target: 1, Ms: 500}},
		{"  WAKE   2 ", Command{Verb: "wake", Target: 2}},
		{"resume-event 65535", Command{Verb: "resume-event", Target: 65535}},
		{"arm 7 250", Command{Verb: "arm", Target: 7, Ms: 250}},
		{"disarm 7", Command{Verb: "disarm", Target: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		input   string
		wantErr string
	}{
		{"", "empty command"},
		{"launch 1", "unknown command"},
		{"trigger", "usage: trigger <event>"},
		{"sleep 1", "usage: sleep <task> <ms>"},
		{"sleep 1 2 3", "usage"},
		{"wake -1", "invalid task index"},
		{"trigger 70000", "invalid event id"},
		{"arm x 10", "invalid delay id"},
		{"sleep 1 0", "invalid duration"},
		{"arm 1 later", "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseCommand(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSuggestions(t *testing.T) {
	s := NewSuggestions()

	s.Update("")
	assert.False(t, s.IsVisible())

	s.Update("re")
	require.True(t, s.IsVisible())
	assert.Equal(t, "reset", s.Selected().Text)
	s.Next()
	assert.Equal(t, "resume", s.Selected().Text)
	s.Next()
	assert.Equal(t, "resume-event", s.Selected().Text)
	s.Next()
	assert.Equal(t, "reset", s.Selected().Text, "wraps around")
	s.Prev()
	assert.Equal(t, "resume-event", s.Selected().Text)

	s.Update("reset ")
	assert.False(t, s.IsVisible(), "hidden once an argument starts")

	s.Update("zzz")
	assert.False(t, s.IsVisible())
	assert.Nil(t, s.Selected())
}

func TestCmdBar_FocusAndSubmit(t *testing.T) {
	m := NewCmdBarModel()
	assert.False(t, m.Focused())

	m.Focus()
	assert.True(t, m.Focused())
	m.SetValue("trigger 3")
	assert.Equal(t, "trigger 3", m.Value())

	got := m.Submit()
	assert.Equal(t, "trigger 3", got)
	assert.False(t, m.Focused())
	assert.Empty(t, m.Value())

	assert.Nil(t, m.Execute(nil, "   "), "blank input runs nothing")
}

func TestCmdBar_ExecuteReportsParseErrors(t *testing.T) {
	m := NewCmdBarModel()
	cmd := m.Execute(nil, "sleep 1")
	require.NotNil(t, cmd)

	msg, ok := cmd().(cmdResultMsg)
	require.True(t, ok)
	assert.Contains(t, msg.message, "usage: sleep")

	m.Update(msg)
	assert.Contains(t, m.View(), "usage: sleep")
}
