package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCmd_UnknownBoard(t *testing.T) {
	c := BuildCmd()
	c.SetArgs([]string{"--board", "beaglebone"})
	c.SilenceUsage = true
	c.SilenceErrors = true
	err := c.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nanopi, rpi")
}

func TestBoardNames(t *testing.T) {
	assert.Equal(t, "host, nanopi, rpi", boardNames())
}
