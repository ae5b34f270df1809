// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package job runs the persistent work queue: polling for pending jobs,
// executing them by run type, and recording terminal state. At most one
// worker executes a given job; acquisition is an atomic status flip in the
// database.
package job

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/sirupsen/logrus"
)

const defaultPollInterval = 2 * time.Second

// Handler executes one acquired job and returns its output summary. A nil
// error marks the job completed; any error marks it failed with the error
// text as the diagnostic.
type Handler func(ctx context.Context, j *database.Job) (json.RawMessage, error)

type Worker struct {
	db       database.DB
	interval time.Duration
	handlers map[database.RunType]Handler
}

func NewWorker(db database.DB, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Worker{
		db:       db,
		interval: interval,
		handlers: make(map[database.RunType]Handler),
	}
}

func (w *Worker) Register(runType database.RunType, h Handler) {
	w.handlers[runType] = h
}

// Run polls until ctx is canceled. Jobs left running by a crashed worker are
// failed up front with a restart diagnostic and their spools removed;
// content-derived commit ids make re-submission of the same import safe.
func (w *Worker) Run(ctx context.Context) error {
	orphans, err := w.db.FailOrphanedJobs(ctx, "worker restarted while job was running")
	if err != nil {
		return err
	}
	if len(orphans) != 0 {
		logrus.Warnf("failed %d orphaned running jobs on startup", len(orphans))
		releaseOrphanedSpools(orphans)
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.drain(ctx); err != nil && ctx.Err() == nil {
			logrus.Errorf("drain pending jobs: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// releaseOrphanedSpools removes the spool files of failed-on-startup import
// jobs. A crashed worker never reached the importer's own cleanup path, so
// this is the last holder of temp_file_path.
func releaseOrphanedSpools(orphans []*database.Job) {
	for _, j := range orphans {
		if j.RunType != database.RunImport {
			continue
		}
		var params ImportParams
		if err := json.Unmarshal(j.RunParameters, &params); err != nil {
			logrus.Warnf("job %s: decode run parameters of orphan: %v", j.ID, err)
			continue
		}
		if len(params.TempFilePath) == 0 {
			continue
		}
		if err := os.Remove(params.TempFilePath); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("job %s: remove orphaned spool '%s': %v", j.ID, params.TempFilePath, err)
		}
	}
}

// drain acquires and executes pending jobs of every registered run type until
// the queue is empty or ctx is canceled.
func (w *Worker) drain(ctx context.Context) error {
	for runType, h := range w.handlers {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			j, err := w.db.AcquireNextPending(ctx, runType)
			if err != nil {
				return err
			}
			if j == nil {
				break
			}
			w.execute(ctx, j, h)
		}
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, j *database.Job, h Handler) {
	logrus.Infof("job %s (%s) started, dataset: %d", j.ID, j.RunType, j.DatasetID)
	start := time.Now()
	summary, err := h(ctx, j)
	if err != nil {
		logrus.Errorf("job %s failed after %v: %v", j.ID, time.Since(start), err)
		// terminal state is recorded even when ctx was the cause
		if uerr := w.db.UpdateJobStatus(context.WithoutCancel(ctx), j.ID, database.JobFailed, nil, err.Error()); uerr != nil {
			logrus.Errorf("job %s: record failure: %v", j.ID, uerr)
		}
		return
	}
	if uerr := w.db.UpdateJobStatus(context.WithoutCancel(ctx), j.ID, database.JobCompleted, summary, ""); uerr != nil {
		logrus.Errorf("job %s: record completion: %v", j.ID, uerr)
		return
	}
	logrus.Infof("job %s completed in %v", j.ID, time.Since(start))
}
