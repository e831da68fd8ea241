/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package sniff implements the WHATWG MIME Sniffing Standard's
// content-based Content-Type detection, used by filetransport when a
// served file's extension maps to no registered type.
package sniff

// DetectContentType implements the algorithm described at
// https://mimesniff.spec.whatwg.org/#identifying-a-resource-with-a-given-mime-type,
// using at most the first 512 bytes of data. It always returns a valid
// MIME type: if no signature matches, "application/octet-stream" is
// returned.
func DetectContentType(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}

	firstNonWS := 0
	for ; firstNonWS < len(data) && isWS(data[firstNonWS]); firstNonWS++ {
	}

	for _, sig := range sniffSignatures {
		if ct := sig.match(data, firstNonWS); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// isWS reports whether the provided byte is a whitespace byte (0xWS)
// per the MIME Sniffing Standard's list.
func isWS(b byte) bool {
	switch b {
	case '\t', '\n', '\x0c', '\r', ' ':
		return true
	}
	return false
}
