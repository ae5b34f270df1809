// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/antgroup/tabula/modules/strengthen"
	"github.com/antgroup/tabula/modules/streamio"
	"github.com/go-sql-driver/mysql"
)

const (
	maxAllowedPacket = 16777216
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Size accepts human byte sizes in TOML: "512", "64K", "2 MiB".
type Size struct {
	Bytes int64
}

func (s *Size) UnmarshalText(text []byte) error {
	var err error
	s.Bytes, err = strengthen.ParseSize(string(text))
	return err
}

type Database struct {
	Name    string   `toml:"name"`
	User    string   `toml:"user"`
	Host    string   `toml:"host"`
	Port    int      `toml:"port"`
	Passwd  string   `toml:"passwd"`
	Timeout Duration `toml:"timeout,omitempty"`
}

func (d *Database) MakeConfig() (*mysql.Config, error) {
	if d.Timeout.Duration == 0 {
		d.Timeout.Duration = 30 * time.Second
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Passwd
	cfg.DBName = d.Name
	cfg.Net = "tcp"
	cfg.Addr = d.Host + ":" + strconv.Itoa(d.Port)
	cfg.Timeout = d.Timeout.Duration
	cfg.ReadTimeout = d.Timeout.Duration
	cfg.WriteTimeout = d.Timeout.Duration
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	// A ref compare-and-swap that leaves the value unchanged must still count
	// as applied; CLIENT_FOUND_ROWS makes RowsAffected report matched rows.
	cfg.ClientFoundRows = true
	cfg.MaxAllowedPacket = maxAllowedPacket

	return cfg, nil
}

type Cache struct {
	NumCounters int64 `toml:"num_counters"`
	MaxCost     int64 `toml:"max_cost"` // MiB
	BufferItems int64 `toml:"buffer_items"`
}

func (c *Cache) Overwrite() {
	if c.NumCounters == 0 {
		c.NumCounters = 1e6
	}
	if c.MaxCost == 0 {
		c.MaxCost = 256
	}
	if c.BufferItems == 0 {
		c.BufferItems = 64
	}
}

const (
	MiByte = 1 << 20
)

// NewExpandReader opens a config file, optionally expanding ${ENV} references
// before the TOML decoder sees it.
func NewExpandReader(file string, expandEnv bool) (io.ReadCloser, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	if !expandEnv {
		return fd, err
	}
	defer fd.Close()
	buf, err := streamio.GrowReadMax(fd, 64*MiByte, 4096)
	if err != nil {
		return nil, err
	}
	b := strings.NewReader(os.ExpandEnv(string(buf)))
	return io.NopCloser(b), nil
}
