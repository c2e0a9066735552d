// Package cos provides common low-level types and utilities for the
// ingestion pipeline.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"sync/atomic"

	"github.com/teris-io/shortid"

	"github.com/appsinstalled/memcload/cmn/debug"
)

const (
	// alphabet for generating per-file attempt IDs, similar to shortid.DEFAULT_ABC
	uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

	LenShortID = 9 // as per https://github.com/teris-io/shortid#id-length
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

// GenUUID generates a short, file-safe attempt ID used to prefix every log
// line a file processor emits, so interleaved output from concurrent file
// processors (the Python original's `current_process().name`/thread-name
// prefix has no Go goroutine equivalent) stays attributable to one file.
func GenUUID() string {
	var h, t string
	uuid := sid.MustGenerate()
	debug.Assertf(len(uuid) == LenShortID, "shortid length drifted: got %d, want %d", len(uuid), LenShortID)
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	if c := uuid[len(uuid)-1]; c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
