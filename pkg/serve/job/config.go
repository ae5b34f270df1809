// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/antgroup/tabula/pkg/serve"
)

type WorkerConfig struct {
	PollInterval serve.Duration  `toml:"poll_interval,omitempty"`
	DB           *serve.Database `toml:"database,omitempty"`
}

func NewWorkerConfig(file string, expandEnv bool) (*WorkerConfig, error) {
	r, err := serve.NewExpandReader(file, expandEnv)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	wc := &WorkerConfig{
		PollInterval: serve.Duration{
			Duration: defaultPollInterval,
		},
	}
	if _, err = toml.NewDecoder(r).Decode(wc); err != nil {
		return nil, err
	}
	if wc.DB == nil {
		return nil, fmt.Errorf("config '%s': missing [database] section", file)
	}
	return wc, nil
}
