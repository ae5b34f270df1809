// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"

	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/antgroup/tabula/pkg/serve/job"
	"github.com/sirupsen/logrus"
)

type Worker struct {
	Config string `short:"c" name:"config" help:"Location of worker config file" default:"~/config/tabula-serve-worker.toml" type:"path"`
}

type workerRunner struct {
	cancel context.CancelFunc
}

func (w *workerRunner) Shutdown(ctx context.Context) error {
	w.cancel()
	return nil
}

func (c *Worker) Run(globals *Globals) error {
	wc, err := job.NewWorkerConfig(c.Config, globals.ExpandEnv)
	if err != nil {
		logrus.Errorf("tabula-serve worker load config error: %v", err)
		return err
	}
	cfg, err := wc.DB.MakeConfig()
	if err != nil {
		logrus.Errorf("tabula-serve worker make database config error: %v", err)
		return err
	}
	db, err := database.NewDB(cfg)
	if err != nil {
		logrus.Errorf("tabula-serve worker open database error: %v", err)
		return err
	}
	defer db.Close() // nolint:errcheck
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := db.EnsureSchema(ctx); err != nil {
		logrus.Errorf("tabula-serve worker ensure schema error: %v", err)
		return err
	}
	w := job.NewWorker(db, wc.PollInterval.Duration)
	w.Register(database.RunImport, job.NewImporter(db).Execute)
	closer := newCloser()
	go closer.listenSignal(ctx, &workerRunner{cancel: cancel})
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorf("tabula-serve worker run error: %v", err)
		return err
	}
	<-closer.ch
	logrus.Infof("tabula-serve worker exited")
	return nil
}
