package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownClosesInReverseDespiteFailures(t *testing.T) {
	var order []string
	a := &app{}
	a.own("wled", func() error { order = append(order, "wled"); return nil })
	a.own("midi", func() error { order = append(order, "midi"); return errors.New("stuck") })
	a.own("render", func() error { order = append(order, "render"); panic("boom") })

	err := a.shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "midi: stuck")
	assert.Contains(t, err.Error(), "render: panic during close")
	assert.Equal(t, []string{"render", "midi", "wled"}, order)
}

func TestRootHasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["devices"])
	assert.NotNil(t, runCmd.Flags().Lookup("config"))
}
