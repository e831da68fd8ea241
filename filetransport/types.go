/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package filetransport

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

const (
	condNone condResult = iota
	condTrue
	condFalse
)

type (
	// A Dir implements FileSystem using the native file system restricted to a
	// specific directory tree.
	//
	// While the FileSystem.Open method takes '/'-separated paths, a Dir's string
	// value is a filename on the native file system, not a URL, so it is separated
	// by filepath.Separator, which isn't necessarily '/'.
	//
	// Note that Dir will allow access to files and directories starting with a
	// period, which could expose sensitive directories like a .git directory or
	// sensitive files like .htpasswd. To exclude files with a leading period,
	// remove the files/directories from the server or create a custom FileSystem
	// implementation.
	//
	// An empty Dir is treated as ".".
	Dir string

	// A FileSystem implements access to a collection of named files.
	// The elements in a file path are separated by slash ('/', U+002F)
	// characters, regardless of host operating system convention.
	FileSystem interface {
		Open(name string) (File, error)
	}

	// A File is returned by a FileSystem's Open method and can be
	// served by StaticFileHandler.
	//
	// The methods should behave the same as those on an *os.File.
	File interface {
		io.Closer
		io.Reader
		io.Seeker
		Readdir(count int) ([]os.FileInfo, error)
		Stat() (os.FileInfo, error)
	}

	// condResult is the result of an HTTP request precondition check.
	// See https://tools.ietf.org/html/rfc7232 section 3.
	condResult int

	// httpRange specifies the byte range to be sent to the client.
	httpRange struct {
		start, length int64
	}
)

var (
	// errNoOverlap is returned by parseRange if first-byte-pos of the
	// byte-range-spec is greater than the content size.
	errNoOverlap = errors.New("filetransport: invalid range: failed to overlap")

	unixEpochTime = time.Unix(0, 0)

	htmlReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&#34;",
		"'", "&#39;",
	)
)
