/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package sniff

// sniffSig matches a signature against the first few hundred bytes of a
// response body, returning a MIME type on success or "" on no match.
type sniffSig interface {
	match(data []byte, firstNonWS int) string
}

type exactSig struct {
	sig []byte
	ct  string
}

type maskedSig struct {
	mask, pat []byte
	skipWS    bool
	ct        string
}

type textSig struct{}

type htmlSig []byte

type mp4Sig struct{}

var mp4ftype = []byte("ftyp")
var mp4 = []byte("mp4")

// sniffLen is the maximum number of content bytes considered when
// detecting a type, matching the WHATWG MIME Sniffing Standard.
const sniffLen = 512

// sniffSignatures is sourced from
// https://mimesniff.spec.whatwg.org/#matching-an-image-type-pattern et al.
// and matched in order, first match wins.
var sniffSignatures = []sniffSig{
	htmlSig("<!DOCTYPE HTML"),
	htmlSig("<HTML"),
	htmlSig("<HEAD"),
	htmlSig("<SCRIPT"),
	htmlSig("<IFRAME"),
	htmlSig("<H1"),
	htmlSig("<DIV"),
	htmlSig("<FONT"),
	htmlSig("<TABLE"),
	htmlSig("<A"),
	htmlSig("<STYLE"),
	htmlSig("<TITLE"),
	htmlSig("<B"),
	htmlSig("<BODY"),
	htmlSig("<BR"),
	htmlSig("<P"),
	htmlSig("<!--"),
	&maskedSig{
		mask: []byte("\xFF\xFF\xFF\xFF\xFF"),
		pat:  []byte("<?xml"),
		skipWS: true,
		ct:   "text/xml; charset=utf-8",
	},
	&exactSig{sig: []byte("%PDF-"), ct: "application/pdf"},
	&exactSig{sig: []byte("%!PS-Adobe-"), ct: "application/postscript"},
	&maskedSig{
		mask: []byte("\xFF\xFF\x00\x00\x00\x00\x00\x00\x00\x00\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF"),
		pat:  []byte("\xFE\xFF\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"),
		ct:   "text/plain; charset=utf-16be",
	},
	&exactSig{sig: []byte("\xFF\xFE"), ct: "text/plain; charset=utf-16le"},
	&exactSig{sig: []byte("\xFE\xFF"), ct: "text/plain; charset=utf-16be"},
	&exactSig{sig: []byte("\xEF\xBB\xBF"), ct: "text/plain; charset=utf-8"},
	&exactSig{sig: []byte("GIF87a"), ct: "image/gif"},
	&exactSig{sig: []byte("GIF89a"), ct: "image/gif"},
	&exactSig{sig: []byte("\x89PNG\r\n\x1A\n"), ct: "image/png"},
	&exactSig{sig: []byte("\xFF\xD8\xFF"), ct: "image/jpeg"},
	&exactSig{sig: []byte("BM"), ct: "image/bmp"},
	&maskedSig{
		mask: []byte("\xFF\xFF\xFF\xFF\x00\x00\x00\x00\xFF\xFF\xFF\xFF"),
		pat:  []byte("RIFF\x00\x00\x00\x00WEBPVP"),
		ct:   "image/webp",
	},
	&exactSig{sig: []byte("\x00\x00\x01\x00"), ct: "image/x-icon"},
	&exactSig{sig: []byte("\x4F\x67\x67\x53\x00"), ct: "application/ogg"},
	&maskedSig{
		mask: []byte("\xFF\xFF\xFF\xFF\x00\x00\x00\x00\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF"),
		pat:  []byte("RIFF\x00\x00\x00\x00WAVEfmt "),
		ct:   "audio/wave",
	},
	&exactSig{sig: []byte("\x1A\x45\xDF\xA3"), ct: "video/webm"},
	&exactSig{sig: []byte("PK\x03\x04"), ct: "application/zip"},
	&exactSig{sig: []byte("Rar!\x1A\x07\x00"), ct: "application/x-rar-compressed"},
	&exactSig{sig: []byte("\x1F\x8B\x08"), ct: "application/x-gzip"},
	mp4Sig{},
	textSig{}, // should be last
}
