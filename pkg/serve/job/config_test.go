// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
poll_interval = "500ms"

[database]
name = "tabula"
user = "tabula"
host = "127.0.0.1"
port = 3306
`), 0600))
	wc, err := NewWorkerConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, wc.PollInterval.Duration)
	require.NotNil(t, wc.DB)
	assert.Equal(t, "tabula", wc.DB.Name)
}

func TestNewWorkerConfigMissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.toml")
	require.NoError(t, os.WriteFile(path, []byte(`poll_interval = "1s"`), 0600))
	_, err := NewWorkerConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[database]")
}
