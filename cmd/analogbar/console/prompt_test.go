package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptText(t *testing.T) {
	assert.Equal(t, "drive port B? [N/y]: ", promptText("drive port B?", []string{No, Yes}))
}

func TestMatchAnswer(t *testing.T) {
	constraints := []string{No, Yes}
	assert.Equal(t, Yes, matchAnswer("Y", constraints))
	assert.Equal(t, Yes, matchAnswer(" y ", constraints))
	assert.Equal(t, No, matchAnswer("", constraints))
	assert.Equal(t, No, matchAnswer("maybe", constraints))
}

func TestConfirm_AssumeYes(t *testing.T) {
	ok, err := Confirm("drive outputs?", true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExit(t *testing.T) {
	err := Exit(3, "pin %d busy", 4)
	assert.Equal(t, 3, err.ExitCode())
	assert.Equal(t, "pin 4 busy", err.Error())
}
