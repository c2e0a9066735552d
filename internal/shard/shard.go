// Package shard classifies records by device type and routes them into
// per-shard batches, one per named destination endpoint.
//
// Grounded on REDESIGN FLAGS item 1: a closed DevType enumeration with an
// indexed address table, replacing the distilled spec's dynamic
// string-keyed dict lookup; and on the teacher's small fixed lookup-table
// idiom (fs/hrw.go, xact/xreg's name->handle registries).
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package shard

import (
	"errors"
	"strconv"

	"github.com/OneOfOne/xxhash"

	"github.com/appsinstalled/memcload/cmn/cos"
	"github.com/appsinstalled/memcload/internal/codec"
	"github.com/appsinstalled/memcload/internal/record"
)

// Endpoint is one shard's network address ("host:port") plus its device
// type, kept together so a writer's logs can always name both.
type Endpoint struct {
	Dev  record.DevType
	Addr string
}

// Pair is one (key, encoded payload) destined for one shard's queue.
type Pair struct {
	Key     string
	Payload []byte
}

// Table is the static-for-the-run map from device type to endpoint. All
// four tags must be present (spec.md §3).
type Table [4]Endpoint

// NewTable builds the address table from the four configured endpoints.
func NewTable(idfa, gaid, adid, dvid string) *Table {
	return &Table{
		record.IDFA: {Dev: record.IDFA, Addr: idfa},
		record.GAID: {Dev: record.GAID, Addr: gaid},
		record.ADID: {Dev: record.ADID, Addr: adid},
		record.DVID: {Dev: record.DVID, Addr: dvid},
	}
}

func (t *Table) Endpoint(dt record.DevType) (Endpoint, bool) {
	if dt >= record.DevType(len(t)) {
		return Endpoint{}, false
	}
	return t[dt], true
}

// Batches is the router's output for one chunk: one sub-batch per shard
// that received at least one pair, keyed by device type.
type Batches map[record.DevType][]Pair

// Router classifies a chunk of already-parsed records and groups them per
// shard. It never performs I/O; routing failures (unknown device type) are
// counted by the caller via the returned Errors value, per spec.md §4.3.
type Router struct {
	table *Table
}

func NewRouter(table *Table) *Router { return &Router{table: table} }

// Result is what routing one chunk produces: the per-shard batches plus
// counts for lines that produced no routable record.
type Result struct {
	Batches Batches
	Skipped int // blank lines: counted nowhere (spec.md invariant 1)
	Errors  int // structural/unknown-devtype/numeric-irrelevant failures
}

// Route parses and classifies every line in a chunk. Numeric tolerance
// (bad apps / bad geo) still produces a routable record; only BadField and
// UnknownDevType increment Errors, matching spec.md §4.1/§4.3. Every error
// that increments Errors is also, if errs is non-nil, recorded into it for
// the caller's final diagnostic log (spec.md §4.5): unknown-endpoint lookups
// are classified with cos.ErrNotFound, everything else with a plain error.
func (r *Router) Route(lines []string, errs *cos.Errs, onInfo func(format string, args ...any)) Result {
	res := Result{Batches: make(Batches, 4)}

	for _, line := range lines {
		pr := record.Parse(line)
		switch pr.Outcome {
		case record.Blank:
			res.Skipped++
			continue
		case record.BadField:
			res.Errors++
			if errs != nil {
				errs.Add(errors.New("malformed line: bad field"))
			}
			continue
		case record.UnknownDevType:
			res.Errors++
			if onInfo != nil {
				onInfo("unknown device type in line: %q", line)
			}
			if errs != nil {
				errs.Add(errors.New("unknown device type in line"))
			}
			continue
		}

		if pr.BadApps && onInfo != nil {
			onInfo("not all user apps are digits: %q", line)
		}
		if pr.BadGeo && onInfo != nil {
			onInfo("invalid geo coords: %q", line)
		}

		ep, ok := r.table.Endpoint(pr.Record.DevType)
		if !ok {
			res.Errors++
			if errs != nil {
				errs.Add(cos.NewErrNotFound("shard endpoint for device type %d", pr.Record.DevType))
			}
			continue
		}

		payload := &codec.Payload{Lat: pr.Record.Lat, Lon: pr.Record.Lon, Apps: pr.Record.Apps}
		b, err := codec.Encode(payload)
		if err != nil {
			res.Errors++
			if errs != nil {
				errs.Add(err)
			}
			continue
		}
		res.Batches[ep.Dev] = append(res.Batches[ep.Dev], Pair{Key: pr.Record.Key(), Payload: b})
	}
	return res
}

// OrderingKey is a deterministic, file-scoped hash the file processor uses
// to tag each chunk's log lines (not for routing — routing is
// closed-enumeration per-DevType, never hashed), the same dependency
// bench/tools/aisloader/run.go uses for its own object-name hashing.
func OrderingKey(filename string, chunkIdx int) uint64 {
	h := xxhash.New64()
	_, _ = h.Write([]byte(filename))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(strconv.Itoa(chunkIdx)))
	return h.Sum64()
}
