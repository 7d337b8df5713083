package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxAudioSampleSize bounds a single length-prefixed audio frame so a
// corrupt or hostile length field can't trigger an unbounded allocation. It
// is the largest length the u16 prefix can carry.
const MaxAudioSampleSize = 1<<16 - 1

// EncodeAudioSample frames an Opus sample as u16 length | payload for the
// audio unidirectional stream.
func EncodeAudioSample(sample []byte) ([]byte, error) {
	if len(sample) > MaxAudioSampleSize {
		return nil, fmt.Errorf("wire: audio sample of %d bytes exceeds max %d", len(sample), MaxAudioSampleSize)
	}
	out := make([]byte, 2+len(sample))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(sample)))
	copy(out[2:], sample)
	return out, nil
}

// DecodeAudioSample reads one length-prefixed frame from the front of buf
// and returns the payload plus the number of bytes consumed.
func DecodeAudioSample(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("wire: audio stream too short for length prefix")
	}
	length := binary.BigEndian.Uint16(buf[0:2])
	if length > MaxAudioSampleSize {
		return nil, 0, fmt.Errorf("wire: audio frame length %d exceeds max %d", length, MaxAudioSampleSize)
	}
	need := 2 + int(length)
	if len(buf) < need {
		return nil, 0, fmt.Errorf("wire: incomplete audio frame: have %d, need %d", len(buf), need)
	}
	return buf[2:need], need, nil
}
