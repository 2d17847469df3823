package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteCmd_RequiresReference(t *testing.T) {
	cmd := completeCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestReconcileCmd_Flags(t *testing.T) {
	cmd := reconcileCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--limit", "200", "--min-age", "10m"}))

	limit, err := cmd.Flags().GetInt("limit")
	require.NoError(t, err)
	assert.Equal(t, 200, limit)

	minAge, err := cmd.Flags().GetDuration("min-age")
	require.NoError(t, err)
	assert.Equal(t, "10m0s", minAge.String())
}
