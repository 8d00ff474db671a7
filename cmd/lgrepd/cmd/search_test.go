package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchCmd_EmptyQueryFails(t *testing.T) {
	setTestEnv(t, t.TempDir())
	dir := t.TempDir()

	cmd := newSearchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"", dir})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestSearchCmd_NonDirectoryPathFails(t *testing.T) {
	setTestEnv(t, t.TempDir())

	cmd := newSearchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"login function", "/does/not/exist/anywhere"})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestSearchCmd_MissingQueryArgFails(t *testing.T) {
	setTestEnv(t, t.TempDir())

	cmd := newSearchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	assert.Error(t, err)
}
