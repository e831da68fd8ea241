/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package filetransport

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

func containsDotDot(v string) bool {
	if !strings.Contains(v, "..") {
		return false
	}
	for _, ent := range strings.FieldsFunc(v, func(r rune) bool { return r == '/' || r == '\\' }) {
		if ent == ".." {
			return true
		}
	}
	return false
}

// Open implements FileSystem, rooting name (a '/'-separated path)
// under d and rejecting ".." path traversal.
func (d Dir) Open(name string) (File, error) {
	if containsDotDot(name) {
		return nil, errors.New("filetransport: invalid character in file path")
	}
	dir := string(d)
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(name))
	f, err := os.Open(fullName)
	if err != nil {
		return nil, err
	}
	return f, nil
}
