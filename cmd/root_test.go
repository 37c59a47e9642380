package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "resolve", "version"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "opengeotiff", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	flag := runCmd.Flags().Lookup("refresh")
	require.NotNil(t, flag, "run command should have --refresh flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestResolveCommand_Output(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"resolve", "https://example.com/rasters/dem.zip#dem_10m.tif"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "fetch URL:   https://example.com/rasters/dem.zip")
	assert.Contains(t, out.String(), "cache name:  dem.zip")
	assert.Contains(t, out.String(), "target hint: dem_10m.tif")
}

func TestResolveCommand_BadURL(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"resolve", "   "})

	assert.Error(t, rootCmd.Execute())
}

func TestVersionCommand_Output(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "opengeotiff dev")
}
