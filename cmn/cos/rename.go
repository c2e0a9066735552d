// Package cos provides common low-level types and utilities for the
// ingestion pipeline.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"os"
	"path/filepath"
)

// DotRename marks path as completed by renaming its basename to its
// dot-prefixed form, same-directory (and therefore atomic on POSIX
// filesystems). Mirrors the dot-prefixed marker-file convention used
// throughout aistore (see cmn/fname's Markers*) applied here to whole input
// files instead of per-mountpath marker files.
func DotRename(path string) (string, error) {
	dir, name := filepath.Split(path)
	if len(name) > 0 && name[0] == '.' {
		return path, nil // already completed
	}
	dst := filepath.Join(dir, "."+name)
	if err := os.Rename(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}
