package hdr_test

import (
	"strings"
	"testing"

	"github.com/duskline/netasync/hdr"
	"github.com/stretchr/testify/assert"
)

func TestStoreAddJoinsWithComma(t *testing.T) {
	s := hdr.NewStore()
	s.Add("accept-encoding", "gzip")
	s.Add("Accept-Encoding", "deflate")
	assert.Equal(t, "gzip, deflate", s.Get("ACCEPT-ENCODING"))
	assert.Equal(t, []string{"gzip", "deflate"}, s.GetList("Accept-Encoding"))
}

func TestStoreSetReplaces(t *testing.T) {
	s := hdr.NewStore()
	s.Add("X-Custom", "one")
	s.Set("X-Custom", "two")
	assert.Equal(t, "two", s.Get("X-Custom"))
	assert.Equal(t, []string{"two"}, s.GetList("X-Custom"))
}

func TestStoreEachPreservesAdditionOrderOnePairPerValue(t *testing.T) {
	s := hdr.NewStore()
	s.Add("Set-Cookie", "a=1")
	s.Add("Content-Type", "text/plain")
	s.Add("Set-Cookie", "b=2")

	var pairs [][2]string
	s.Each(func(name, value string) {
		pairs = append(pairs, [2]string{name, value})
	})
	assert.Equal(t, [][2]string{
		{"Set-Cookie", "a=1"},
		{"Set-Cookie", "b=2"},
		{"Content-Type", "text/plain"},
	}, pairs)
}

func TestStoreDelRemovesFromOrderAndValues(t *testing.T) {
	s := hdr.NewStore()
	s.Add("A", "1")
	s.Add("B", "2")
	s.Del("A")
	assert.False(t, s.Has("A"))
	assert.Equal(t, "", s.Get("A"))

	var names []string
	s.Each(func(name, value string) { names = append(names, name) })
	assert.Equal(t, []string{"B"}, names)
}

func TestStoreWriteToWireFormat(t *testing.T) {
	s := hdr.NewStore()
	s.Add("Host", "example.com")
	s.Add("Accept", "*/*")

	var buf strings.Builder
	err := s.WriteTo(&buf)
	assert.NoError(t, err)
	assert.Equal(t, "Host: example.com\r\nAccept: */*\r\n", buf.String())
}

func TestStoreCloneIsIndependent(t *testing.T) {
	s := hdr.NewStore()
	s.Add("X", "1")
	cp := s.Clone()
	cp.Add("X", "2")
	assert.Equal(t, []string{"1"}, s.GetList("X"))
	assert.Equal(t, []string{"1", "2"}, cp.GetList("X"))
}
