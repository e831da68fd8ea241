package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeAcceptValueMatchesRFC6455Example(t *testing.T) {
	// The exact key/accept pair from RFC 6455 §1.3.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", computeAcceptValue("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestSelectSubprotocolPicksFirstRequestedThatIsOffered(t *testing.T) {
	assert.Equal(t, "chat", selectSubprotocol("chat, superchat", []string{"superchat", "chat"}))
	assert.Equal(t, "", selectSubprotocol("chat", []string{"superchat"}))
	assert.Equal(t, "", selectSubprotocol("", []string{"chat"}))
}

func TestEncodeFrameUnmaskedCopiesPayloadVerbatim(t *testing.T) {
	payload := []byte("hello world")
	frame := encodeFrame(true, opText, payload, nil)

	assert.Equal(t, byte(0x81), frame[0]) // fin=1, opcode=text
	assert.Equal(t, byte(len(payload)), frame[1])
	assert.Equal(t, payload, frame[2:])
}

func TestEncodeFrameMaskedPayloadDecodesWithApplyMask(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10, 0x20, 0x30}
	mask := []byte{0x01, 0x02, 0x03, 0x04}
	frame := encodeFrame(true, opBinary, payload, mask)

	assert.Equal(t, byte(0x82), frame[0])
	assert.True(t, frame[1]&0x80 != 0, "mask bit must be set")

	masked := append([]byte(nil), frame[2+4:]...)
	applyMask(mask, masked)
	assert.Equal(t, payload, masked)
}

func TestEncodeFrameExtendedLength16Bit(t *testing.T) {
	payload := make([]byte, 200)
	frame := encodeFrame(true, opBinary, payload, nil)
	assert.Equal(t, byte(126), frame[1])
	assert.Len(t, frame, 4+200)
}

func TestEncodeFrameExtendedLength64Bit(t *testing.T) {
	payload := make([]byte, 70000)
	frame := encodeFrame(true, opBinary, payload, nil)
	assert.Equal(t, byte(127), frame[1])
	assert.Len(t, frame, 10+70000)
}
