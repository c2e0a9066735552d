// Package cos provides common low-level types and utilities for the
// ingestion pipeline.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	ratomic "sync/atomic"
	"syscall"

	"github.com/appsinstalled/memcload/cmn/debug"
	"github.com/appsinstalled/memcload/cmn/nlog"
)

type (
	ErrNotFound struct {
		what string
	}
	// Errs is a bounded, deduplicating multi-error accumulator: at most
	// maxErrs distinct messages are kept; every Add, duplicates and those
	// past the cap included, is counted via Cnt.
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func IsErrNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	ratomic.AddInt64(&e.cnt, 1)
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

// Error renders the first kept error plus a count of how many more were seen.
func (e *Errs) Error() (s string) {
	cnt := e.Cnt()
	if cnt == 0 {
		return ""
	}
	e.mu.Lock()
	err := e.errs[0]
	e.mu.Unlock()
	if cnt > 1 {
		return fmt.Sprintf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	return err.Error()
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

//
// retriable-transport-error helpers
//

func IsRetriableConnErr(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

//
// abnormal termination
//

const fatalPrefix = "FATAL ERROR: "

// ExitLogf logs the fatal message (if logging has been initialized) and
// exits the process with status 1, per spec.md §6's exit-code contract.
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.Errorf("%s", msg)
		nlog.Flush()
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
