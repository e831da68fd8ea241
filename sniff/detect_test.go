package sniff_test

import (
	"testing"

	"github.com/duskline/netasync/sniff"
	"github.com/stretchr/testify/assert"
)

func TestDetectContentType(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n" + "rest"), "image/png"},
		{"gif87", []byte("GIF87a" + "rest"), "image/gif"},
		{"html", []byte("<!DOCTYPE HTML>\n<html></html>"), "text/html; charset=utf-8"},
		{"leading whitespace html", []byte("  \t\n<HTML><body></body></html>"), "text/html; charset=utf-8"},
		{"plain text", []byte("just some ordinary text"), "text/plain; charset=utf-8"},
		{"unknown binary", []byte{0x00, 0x01, 0x02, 0x03}, "application/octet-stream"},
		{"empty", nil, "text/plain; charset=utf-8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sniff.DetectContentType(tc.data))
		})
	}
}
