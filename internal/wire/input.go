package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/breeze-rmm/streamgate/internal/channel"
)

// MaxInputPayloadSize bounds a single length-prefixed input/data-channel
// payload: the largest length the u16 prefix can carry.
const MaxInputPayloadSize = 1<<16 - 1

// EncodeInputStreamHeader returns the single leading byte a WebTransport
// data-channel stream opener sends so the acceptor can route the stream to
// the correct logical channel.
func EncodeInputStreamHeader(id channel.ID) byte {
	return byte(id)
}

// DecodeInputStreamHeader parses the leading channel-id byte of a newly
// opened bidirectional stream.
func DecodeInputStreamHeader(b byte) channel.ID {
	return channel.ID(b)
}

// EncodeInputPacket frames one InputPacket payload as u16 length | payload,
// for repeated delivery on an already-routed WebTransport stream.
func EncodeInputPacket(payload []byte) ([]byte, error) {
	if len(payload) > MaxInputPayloadSize {
		return nil, fmt.Errorf("wire: input payload of %d bytes exceeds max %d", len(payload), MaxInputPayloadSize)
	}
	out := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(payload)))
	copy(out[2:], payload)
	return out, nil
}

// DecodeInputPacket reads one length-prefixed frame from the front of buf
// and returns the payload plus the number of bytes consumed.
func DecodeInputPacket(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("wire: input stream too short for length prefix")
	}
	length := binary.BigEndian.Uint16(buf[0:2])
	if length > MaxInputPayloadSize {
		return nil, 0, fmt.Errorf("wire: input frame length %d exceeds max %d", length, MaxInputPayloadSize)
	}
	need := 2 + int(length)
	if len(buf) < need {
		return nil, 0, fmt.Errorf("wire: incomplete input frame: have %d, need %d", len(buf), need)
	}
	return buf[2:need], need, nil
}
