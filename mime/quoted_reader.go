/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package mime

import (
	"bytes"
	"fmt"
	"io"
)

// Read decodes quoted-printable data from the underlying reader,
// unwrapping soft line breaks ("=\r\n" / "=\n") and "=XX" escapes.
func (r *QuotedReader) Read(d []byte) (n int, err error) {
	if len(d) == 0 {
		return 0, nil
	}
	if len(r.line) == 0 {
		if r.rerr != nil {
			return 0, r.rerr
		}
		r.line, r.rerr = r.br.ReadSlice('\n')
		if len(r.line) == 0 {
			return 0, r.rerr
		}
		r.line = bytes.TrimRightFunc(r.line, isQPDiscardWhitespace)
	}
	for n < len(d) && len(r.line) > 0 {
		if r.line[0] == '=' {
			if len(r.line) == 1 {
				// soft line break, consume and loop to fetch next line
				r.line = nil
				if r.rerr != nil {
					return n, nil
				}
				r.line, r.rerr = r.br.ReadSlice('\n')
				r.line = bytes.TrimRightFunc(r.line, isQPDiscardWhitespace)
				continue
			}
			if len(r.line) < 3 {
				return n, fmt.Errorf("mime: invalid quoted-printable escape %q", r.line)
			}
			b, decErr := readHexByte(r.line[1:3])
			if decErr != nil {
				return n, decErr
			}
			d[n] = b
			n++
			r.line = r.line[3:]
			continue
		}
		d[n] = r.line[0]
		n++
		r.line = r.line[1:]
	}
	if len(r.line) == 0 && r.rerr != nil {
		return n, nil
	}
	return n, nil
}

var _ io.Reader = (*QuotedReader)(nil)

// Read delegates to the wrapped reader until it has ever returned an
// error, after which it keeps returning that same error — some
// multipart body readers Read past an error more than once, which
// io.Reader does not otherwise guarantee is safe.
func (r *stickyErrorReader) Read(p []byte) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}
	n, r.err = r.r.Read(p)
	return n, r.err
}
