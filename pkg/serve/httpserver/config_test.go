// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "httpd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewServerConfig(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:9000"
max_upload_size = "64 MiB"

[database]
name = "tabula"
user = "tabula"
host = "127.0.0.1"
port = 3306
`)
	sc, err := NewServerConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", sc.Listen)
	assert.Equal(t, int64(64<<20), sc.MaxUploadSize.Bytes)
	assert.Equal(t, DefaultReadTimeout, sc.ReadTimeout.Duration)
	assert.NotEmpty(t, sc.SpoolDir)
	require.NotNil(t, sc.Cache)
	assert.NotZero(t, sc.Cache.MaxCost)
	require.NotNil(t, sc.DB)
	assert.Equal(t, "tabula", sc.DB.Name)
}

func TestNewServerConfigMissingDatabase(t *testing.T) {
	path := writeConfig(t, `listen = "127.0.0.1:9000"`)
	_, err := NewServerConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[database]")
}

func TestNewServerConfigExpandEnv(t *testing.T) {
	t.Setenv("TABULA_DB_PASSWD", "sesame")
	path := writeConfig(t, `
[database]
name = "tabula"
user = "tabula"
host = "127.0.0.1"
port = 3306
passwd = "${TABULA_DB_PASSWD}"
`)
	sc, err := NewServerConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "sesame", sc.DB.Passwd)
}

func TestServerConfigTimeouts(t *testing.T) {
	path := writeConfig(t, `
read_timeout = "30s"

[database]
name = "tabula"
user = "tabula"
host = "127.0.0.1"
port = 3306
`)
	sc, err := NewServerConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, sc.ReadTimeout.Duration)
	assert.Equal(t, DefaultWriteTimeout, sc.WriteTimeout.Duration)
}
