package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateDryRun_ListsEmbeddedFiles(t *testing.T) {
	cmd := migrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--dry-run"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "000001_create_admins.up.sql")
	assert.Contains(t, out.String(), "000004_create_refresh_tokens.up.sql")
}

func TestCreateAdmin_RequiresFlags(t *testing.T) {
	cmd := createAdminCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--email", "fatou@example.com"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
