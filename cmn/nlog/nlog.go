// Package nlog is the ingestion pipeline's logger: buffered, timestamped,
// severity-leveled writing to a file or stderr.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxLineSize = 2 * 1024

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const sevChar = "IWE"

var (
	toStderr     bool
	alsoToStderr bool

	mw  sync.Mutex
	out *bufio.Writer
	f   *os.File
)

// InitFlags registers the two logging destination flags the same way the
// rest of the pipeline's config flags are registered (see internal/config).
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of a file")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as the log file")
}

// SetOutput directs file-backed logging at path. Empty path means stderr-only.
func SetOutput(path string) error {
	mw.Lock()
	defer mw.Unlock()
	if f != nil {
		out.Flush()
		f.Close()
		f = nil
	}
	if path == "" {
		out = nil
		return nil
	}
	var err error
	f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	out = bufio.NewWriterSize(f, 32*1024)
	return nil
}

func Infof(format string, args ...any)    { log(sevInfo, 1, format, args...) }
func Infoln(args ...any)                  { log(sevInfo, 1, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 1, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 1, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 1, format, args...) }
func Errorln(args ...any)                 { log(sevErr, 1, "", args...) }

// Flush writes any buffered output to disk. Call before process exit.
func Flush() {
	mw.Lock()
	defer mw.Unlock()
	if out != nil {
		out.Flush()
	}
}

func log(sev severity, depth int, format string, args ...any) {
	line := sprintf(sev, depth+1, format, args...)

	if toStderr || out == nil || sev >= sevErr {
		os.Stderr.WriteString(line)
		if toStderr {
			return
		}
	}
	if alsoToStderr && !toStderr && sev < sevErr {
		os.Stderr.WriteString(line)
	}

	mw.Lock()
	if out != nil {
		out.WriteString(line)
	}
	mw.Unlock()
}

func sprintf(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("2006/01/02 15:04:05.000000"))
	b.WriteByte(' ')

	if _, fn, ln, ok := runtime.Caller(2 + depth); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}

	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if n := b.Len(); n == 0 || b.String()[n-1] != '\n' {
			b.WriteByte('\n')
		}
	}
	if b.Len() > maxLineSize {
		return b.String()[:maxLineSize]
	}
	return b.String()
}
