package cache

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
)

// payloadEncoding tags how a payload column is stored. Stored on disk;
// values must not change.
type payloadEncoding int64

const (
	encodingNone payloadEncoding = 0
	encodingZstd payloadEncoding = 1
)

// compressThreshold is the smallest payload worth compressing.
const compressThreshold = 1024

// Shared zstd encoder and decoder. Both are safe for concurrent use with
// EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	cborEncMode cbor.EncMode
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
}

// encodePayload compresses payload when it is large enough and compression
// actually shrinks it.
func encodePayload(payload []byte) ([]byte, payloadEncoding) {
	if len(payload) < compressThreshold {
		return payload, encodingNone
	}
	compressed := zstdEncoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
	if len(compressed) >= len(payload) {
		return payload, encodingNone
	}
	return compressed, encodingZstd
}

func decodePayload(data []byte, enc payloadEncoding, rawSize int64) ([]byte, error) {
	switch enc {
	case encodingNone:
		return data, nil
	case encodingZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown payload encoding %d", enc)
	}
}

// Digest returns the BLAKE3 hex digest of a payload.
func Digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func marshalIndex(idx *catalog.Index) ([]byte, error) {
	return cborEncMode.Marshal(idx)
}

func unmarshalIndex(data []byte) (*catalog.Index, error) {
	var idx catalog.Index
	if err := cbor.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}
