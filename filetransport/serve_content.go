/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package filetransport serves files from a FileSystem directly into
// a web.Context: conditional GET (If-None-Match / If-Modified-Since),
// single-range byte-range requests, and content-type detection via the
// sniff package when the file extension maps to no registered type.
// Grounded on net/http's fs.go ServeContent/serveFile, adapted from
// io.ReadSeeker + http.ResponseWriter to an in-memory read plus a
// buffer handed to web.Context.Write — this module's Context has no
// streaming-write path, so unlike net/http this never serves multiple
// byte ranges as a multipart/byteranges response; a request asking for
// more than one range gets the whole file back, matching the
// A-IM-less fallback net/http itself takes when it can't satisfy a
// multi-range request cheaply.
package filetransport

import (
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/mime"
	"github.com/duskline/netasync/sniff"
	"github.com/duskline/netasync/web"
)

// ServeFile opens name from fs and writes it into ctx, handling
// conditional requests and a single Range header. Applications mount
// it by pairing NewStaticFileHandler with a web.Settings.StaticPath
// root and registering the resulting factory against a URLSpec (e.g.
// "/static/(.*)$"); web.Application itself stays free of a
// filetransport import.
func ServeFile(ctx *web.Context, fs FileSystem, name string) {
	f, err := fs.Open(name)
	if err != nil {
		ctx.SendError(404, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		ctx.SendError(404, err)
		return
	}
	if info.IsDir() {
		ctx.SendError(404, nil)
		return
	}

	serveContent(ctx, name, info.ModTime(), info.Size(), f)
}

func serveContent(ctx *web.Context, name string, modtime time.Time, size int64, content io.ReadSeeker) {
	setLastModified(ctx, modtime)
	if ctx.Header.Get(hdr.Etag) == "" && !modtime.IsZero() {
		ctx.SetHeader(hdr.Etag, weakETag(modtime, size))
	}
	done, rangeReq := checkPreconditions(ctx, modtime)
	if done {
		return
	}

	ctype := ctx.Header.Get(hdr.ContentType)
	if ctype == "" {
		ctype = mime.MIMETypeByExtension(filepath.Ext(name))
		if ctype == "" {
			var buf [sniffBufSize]byte
			n, _ := io.ReadFull(content, buf[:])
			ctype = sniff.DetectContentType(buf[:n])
			if _, err := content.Seek(0, io.SeekStart); err != nil {
				ctx.SendError(500, err)
				return
			}
		}
		ctx.SetHeader(hdr.ContentType, ctype)
	}

	ctx.SetHeader(hdr.AcceptRanges, "bytes")

	sendSize := size
	code := 200

	ranges, err := parseRange(rangeReq, size)
	switch {
	case err == errNoOverlap:
		ctx.SetHeader(hdr.ContentRange, "bytes */"+strconv.FormatInt(size, 10))
		ctx.SendError(416, err)
		return
	case err != nil:
		ctx.SendError(400, err)
		return
	case len(ranges) == 1:
		ra := ranges[0]
		if _, err := content.Seek(ra.start, io.SeekStart); err != nil {
			ctx.SendError(500, err)
			return
		}
		sendSize = ra.length
		code = 206
		ctx.SetHeader(hdr.ContentRange, ra.contentRange(size))
	}

	ctx.SetStatus(code, "")
	ctx.SetHeader(hdr.ContentLength, strconv.FormatInt(sendSize, 10))

	if ctx.Request.Method != "HEAD" {
		io.CopyN(ctxWriter{ctx}, content, sendSize)
	}
	ctx.Finish()
}

const sniffBufSize = 512

// ctxWriter adapts web.Context's buffering Write to io.Writer so
// io.CopyN can stream a file's bytes into the response buffer.
type ctxWriter struct{ ctx *web.Context }

func (w ctxWriter) Write(p []byte) (int, error) {
	w.ctx.Write(p)
	return len(p), nil
}

// weakETag derives a weak validator from a file's mtime and size, the
// same cheap stat-based scheme nginx/apache use absent a content hash.
func weakETag(modtime time.Time, size int64) string {
	return `W/"` + strconv.FormatInt(modtime.Unix(), 36) + "-" + strconv.FormatInt(size, 36) + `"`
}

func setLastModified(ctx *web.Context, modtime time.Time) {
	if modtime.IsZero() || modtime.Equal(unixEpochTime) {
		return
	}
	ctx.SetHeader(hdr.LastModified, modtime.UTC().Format(hdr.TimeFormat))
}

// checkPreconditions evaluates If-None-Match and If-Modified-Since
// against the already-set ETag/Last-Modified headers, writing a 304
// and finishing ctx when the client's cached copy is still valid.
// When a Range header is present and not defeated by If-Range, its
// raw value is returned for serveContent to parse.
func checkPreconditions(ctx *web.Context, modtime time.Time) (done bool, rangeHeader string) {
	etag := ctx.Header.Get(hdr.Etag)
	if inm := ctx.Request.Header.Get(hdr.IfNoneMatch); inm != "" {
		if etagMatches(inm, etag) {
			ctx.Header.Del(hdr.ContentType)
			ctx.Header.Del(hdr.ContentLength)
			ctx.SetStatus(304, "")
			ctx.Finish()
			return true, ""
		}
	} else if ims := ctx.Request.Header.Get(hdr.IfModifiedSince); ims != "" {
		if t, err := time.Parse(hdr.TimeFormat, ims); err == nil && !modtime.IsZero() {
			if modtime.Before(t.Add(1 * time.Second)) {
				ctx.SetStatus(304, "")
				ctx.Finish()
				return true, ""
			}
		}
	}

	rangeHeader = ctx.Request.Header.Get(hdr.Range)
	if rangeHeader != "" {
		if ir := ctx.Request.Header.Get(hdr.IfRange); ir != "" && !etagMatches(ir, etag) {
			rangeHeader = ""
		}
	}
	return false, rangeHeader
}

func etagMatches(header, etag string) bool {
	if etag == "" {
		return false
	}
	for {
		header = strings.TrimLeft(header, " \t,")
		if header == "" {
			break
		}
		if header[0] == '*' {
			return true
		}
		tag, rest := scanETag(header)
		if tag == "" {
			break
		}
		if tag == etag {
			return true
		}
		header = rest
	}
	return false
}

// scanETag splits off the leading ETag (optionally weak-prefixed)
// from s, returning it and the unconsumed remainder.
func scanETag(s string) (etag string, remain string) {
	weak := strings.HasPrefix(s, "W/")
	if weak {
		s = s[2:]
	}
	if len(s) < 2 || s[0] != '"' {
		return "", ""
	}
	for i := 1; i < len(s); i++ {
		if s[i] == '"' {
			raw := s[:i+1]
			if weak {
				raw = "W/" + raw
			}
			return raw, s[i+1:]
		}
	}
	return "", ""
}
