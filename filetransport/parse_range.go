/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package filetransport

import (
	"fmt"
	"strconv"
	"strings"
)

// parseRange parses a Range header string as per RFC 7233, section
// 2.1. errNoOverlap is returned if none of the ranges overlap a
// resource of the given size.
func parseRange(s string, size int64) ([]httpRange, error) {
	if s == "" {
		return nil, nil // header not present
	}
	const b = "bytes="
	if !strings.HasPrefix(s, b) {
		return nil, fmt.Errorf("filetransport: invalid range")
	}
	var ranges []httpRange
	noOverlap := false
	for _, ra := range strings.Split(s[len(b):], ",") {
		ra = strings.TrimSpace(ra)
		if ra == "" {
			continue
		}
		start, end, ok := strings.Cut(ra, "-")
		if !ok {
			return nil, fmt.Errorf("filetransport: invalid range")
		}
		start, end = strings.TrimSpace(start), strings.TrimSpace(end)
		var r httpRange
		if start == "" {
			// suffix range: "bytes=-N" means the last N bytes.
			if end == "" {
				return nil, fmt.Errorf("filetransport: invalid range")
			}
			i, err := strconv.ParseInt(end, 10, 64)
			if i < 0 || err != nil {
				return nil, fmt.Errorf("filetransport: invalid range")
			}
			if i > size {
				i = size
			}
			r.start = size - i
			r.length = size - r.start
		} else {
			i, err := strconv.ParseInt(start, 10, 64)
			if err != nil || i < 0 {
				return nil, fmt.Errorf("filetransport: invalid range")
			}
			if i >= size {
				// If the range begins after the size of the content it
				// does not overlap.
				noOverlap = true
				continue
			}
			r.start = i
			if end == "" {
				// till the end: "bytes=N-"
				r.length = size - r.start
			} else {
				i, err := strconv.ParseInt(end, 10, 64)
				if err != nil || r.start > i {
					return nil, fmt.Errorf("filetransport: invalid range")
				}
				if i >= size {
					i = size - 1
				}
				r.length = i - r.start + 1
			}
		}
		ranges = append(ranges, r)
	}
	if noOverlap && len(ranges) == 0 {
		return nil, errNoOverlap
	}
	return ranges, nil
}
