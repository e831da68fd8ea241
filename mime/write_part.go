/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package mime

import "errors"

// Write implements io.Writer, writing the part's body bytes directly
// to the underlying MultipartWriter. It fails once a later part has
// been created (only the most recently created part may still be
// written to).
func (p *part) Write(d []byte) (n int, err error) {
	if p.closed {
		return 0, errors.New("mime: write after close of part")
	}
	return p.writer.w.Write(d)
}

// close marks p as no longer writable; CreatePart and Close call this
// on the previously active part before starting a new one or emitting
// the trailing boundary.
func (p *part) close() error {
	p.closed = true
	return p.we
}
