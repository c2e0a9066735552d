// Command memcload runs the apps-installed ingestion pipeline: it reads
// gzip TSV files matching a glob pattern, parses and shards each record by
// device type, writes it to the corresponding cache endpoint, and marks
// each file done with an atomic dot-rename.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appsinstalled/memcload/cmn/cos"
	"github.com/appsinstalled/memcload/cmn/nlog"
	"github.com/appsinstalled/memcload/internal/config"
	"github.com/appsinstalled/memcload/internal/ingest"
	"github.com/appsinstalled/memcload/internal/record"
	"github.com/appsinstalled/memcload/internal/shard"
	"github.com/appsinstalled/memcload/internal/stats"
	"github.com/appsinstalled/memcload/internal/supervisor"
)

var cfg config.Config

func init() {
	config.RegisterFlags(flag.CommandLine, &cfg)
	nlog.InitFlags(flag.CommandLine)
}

func main() {
	flag.Parse()

	if err := nlog.SetOutput(cfg.Log); err != nil {
		cos.ExitLogf("cannot open log file %q: %v", cfg.Log, err)
	}
	defer nlog.Flush()

	cos.InitShortID(uint64(time.Now().UnixNano()))

	if snap, err := cfg.Snapshot(); err == nil {
		nlog.Infof("config: %s", snap)
	}

	if cfg.Test {
		runSelfCheck()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel)

	metrics := stats.New()
	metrics.Serve(cfg.MetricsAddr)

	table := shard.NewTable(cfg.IDFA, cfg.GAID, cfg.ADID, cfg.DVID)
	proc := ingest.New(table,
		ingest.WithDryRun(cfg.Dry),
		ingest.WithPolicy(cfg.RetryPolicy()),
		ingest.WithMetrics(metrics),
	)
	sup := supervisor.New(cfg.Pattern, cfg.Workers, proc, metrics)

	summary, err := sup.Run(ctx)
	if err != nil {
		cos.ExitLogf("supervisor: %v", err)
	}
	nlog.Infof("done: %d files, %d renamed, %d failed, %d processed, %d errors",
		summary.Files, summary.Renamed, summary.Failed, summary.Processed, summary.Errors)
}

// runSelfCheck exercises the encoder/router on one synthetic record so an
// operator can sanity-check wiring (--test) without touching the filesystem
// or the network (per spec.md §6's --test flag, otherwise unspecified at
// the boundary).
func runSelfCheck() {
	table := shard.NewTable(cfg.IDFA, cfg.GAID, cfg.ADID, cfg.DVID)
	router := shard.NewRouter(table)
	res := router.Route([]string{"idfa\tselfcheck\t1.0\t2.0\t1,2,3"}, nil, func(f string, a ...any) {
		nlog.Infof(f, a...)
	})
	if res.Errors != 0 || len(res.Batches[record.IDFA]) != 1 {
		fmt.Fprintln(os.Stderr, "self-check FAILED: router did not produce the expected batch")
		os.Exit(1)
	}
	fmt.Println("self-check OK")
}

func installSignalHandler(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		nlog.Warningln("received shutdown signal, stopping")
		cancel()
	}()
}
