// Package supervisor discovers input files by glob pattern, runs a bounded
// pool of file processors, consumes their results in submission order, and
// performs the completion rename.
//
// Grounded on spec.md §4.6, §5; original_source/hw9/memc_load.py's
// main/pool.imap; ext/dsort/dsort.go and fs/walkbck.go's
// errgroup.WithContext + group.Go fan-out pattern.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package supervisor

import (
	"context"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/appsinstalled/memcload/cmn/cos"
	"github.com/appsinstalled/memcload/cmn/nlog"
	"github.com/appsinstalled/memcload/internal/ingest"
	"github.com/appsinstalled/memcload/internal/stats"
)

// Processor is the subset of ingest.Processor the supervisor depends on,
// abstracted so tests can swap in a fake.
type Processor interface {
	Process(ctx context.Context, path string) (ingest.Report, error)
}

type Supervisor struct {
	pattern string
	workers int
	proc    Processor
	metrics *stats.Registry
}

func New(pattern string, workers int, proc Processor, metrics *stats.Registry) *Supervisor {
	if workers < 1 {
		workers = 1
	}
	return &Supervisor{pattern: pattern, workers: workers, proc: proc, metrics: metrics}
}

// Summary is the run-wide tally across every discovered file.
type Summary struct {
	Files     int
	Renamed   int
	Failed    int
	Processed int
	Errors    int
}

// Run discovers files matching the pattern, processes up to `workers`
// concurrently, and renames each on completion regardless of the
// error-rate gate's verdict (spec.md §4.6, §9 Open Question 1).
func (s *Supervisor) Run(ctx context.Context) (Summary, error) {
	paths, err := filepath.Glob(s.pattern)
	if err != nil {
		return Summary{}, err
	}
	sort.Strings(paths)

	results := make([]ingest.Report, len(paths))
	failed := make([]error, len(paths))
	spawnErrs := &cos.Errs{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			report, err := s.proc.Process(gctx, path)
			results[i] = report
			if err != nil {
				failed[i] = err
				if cos.IsErrNotFound(err) {
					nlog.Warningf("skipping %s: %v", path, err)
				} else {
					nlog.Errorf("processing %s: %v", path, err)
					spawnErrs.Add(err)
				}
			}
			return nil // a per-file failure never aborts the pool (spec.md §4.6.4)
		})
	}
	// errgroup's own Wait error is unused here: failures are per-file, not
	// pool-fatal, and are collected into `failed` above instead.
	_ = g.Wait()
	if spawnErrs.Cnt() > 0 {
		nlog.Warningf("%d of %d files failed to process: %s", spawnErrs.Cnt(), len(paths), spawnErrs.Error())
	}

	summary := Summary{Files: len(paths)}
	for i, report := range results {
		if failed[i] != nil {
			summary.Failed++
			continue
		}
		summary.Processed += report.Processed
		summary.Errors += report.Errors
		if _, err := cos.DotRename(report.File); err != nil {
			nlog.Errorf("renaming %s: %v", report.File, err)
			summary.Failed++
			continue
		}
		summary.Renamed++
		if s.metrics != nil {
			s.metrics.ObserveRename()
		}
	}
	return summary, nil
}
