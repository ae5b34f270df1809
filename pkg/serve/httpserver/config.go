// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/antgroup/tabula/pkg/serve"
	"github.com/antgroup/tabula/pkg/version"
)

const (
	DefaultReadTimeout  = 2 * time.Hour
	DefaultWriteTimeout = 2 * time.Hour
	DefaultIdleTimeout  = 5 * time.Minute

	DefaultMaxUploadSize = 2 << 30 // 2 GiB
)

type ServerConfig struct {
	Listen        string          `toml:"listen"`
	SpoolDir      string          `toml:"spool_dir,omitempty"`
	MaxUploadSize serve.Size      `toml:"max_upload_size,omitempty"`
	Secret        string          `toml:"secret,omitempty"` // empty disables bearer auth
	IdleTimeout   serve.Duration  `toml:"idle_timeout,omitempty"`
	ReadTimeout   serve.Duration  `toml:"read_timeout,omitempty"`
	WriteTimeout  serve.Duration  `toml:"write_timeout,omitempty"`
	BannerVersion string          `toml:"banner_version,omitempty"`
	Cache         *serve.Cache    `toml:"cache,omitempty"`
	DB            *serve.Database `toml:"database,omitempty"`
}

func NewServerConfig(file string, expandEnv bool) (*ServerConfig, error) {
	r, err := serve.NewExpandReader(file, expandEnv)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	sc := &ServerConfig{
		Listen: "127.0.0.1:21600",
		IdleTimeout: serve.Duration{
			Duration: DefaultIdleTimeout,
		},
		ReadTimeout: serve.Duration{
			Duration: DefaultReadTimeout,
		},
		WriteTimeout: serve.Duration{
			Duration: DefaultWriteTimeout,
		},
		BannerVersion: version.GetServerVersion(),
	}
	if _, err = toml.NewDecoder(r).Decode(sc); err != nil {
		return nil, err
	}
	if sc.DB == nil {
		return nil, fmt.Errorf("config '%s': missing [database] section", file)
	}
	if len(sc.SpoolDir) == 0 {
		sc.SpoolDir = os.TempDir()
	}
	if sc.MaxUploadSize.Bytes == 0 {
		sc.MaxUploadSize.Bytes = DefaultMaxUploadSize
	}
	if sc.Cache == nil {
		sc.Cache = &serve.Cache{}
	}
	sc.Cache.Overwrite()
	return sc, nil
}
