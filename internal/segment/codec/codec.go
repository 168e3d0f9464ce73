package codec

import (
	"errors"
	"fmt"

	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Envelope layout: [version][compression][body]. The body is a deterministic CBOR encoding of
// model.Segment, optionally zstd compressed.
const (
	VersionV1  byte = 0x01
	headerSize      = 2
)

type Compression byte

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

const maxDecodedSize = 16 << 20

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// DecodeError marks an envelope that can never be parsed. It is fatal for that one segment only.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode segment envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to decode segment envelope: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// Decode turns a wire envelope into a freshly allocated Segment.
func Decode(raw []byte) (*model.Segment, error) {
	if len(raw) < headerSize {
		return nil, &DecodeError{Reason: fmt.Sprintf("envelope too short (%d bytes)", len(raw))}
	}
	if raw[0] != VersionV1 {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported envelope version %d", raw[0])}
	}

	body := raw[headerSize:]
	switch Compression(raw[1]) {
	case CompressionNone:
	case CompressionZstd:
		decompressed, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, &DecodeError{Reason: "zstd body", Err: err}
		}
		body = decompressed
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown compression tag %d", raw[1])}
	}

	var segment model.Segment
	if err := decMode.Unmarshal(body, &segment); err != nil {
		return nil, &DecodeError{Reason: "cbor body", Err: err}
	}
	if len(segment.SegmentID.IdParts) == 0 {
		return nil, &DecodeError{Reason: "segment id is empty"}
	}
	return &segment, nil
}

func Encode(segment *model.Segment, compression Compression) ([]byte, error) {
	body, err := encMode.Marshal(segment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segment: %w", err)
	}

	switch compression {
	case CompressionNone:
	case CompressionZstd:
		body = zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)))
	default:
		return nil, fmt.Errorf("unknown compression tag %d", compression)
	}

	raw := make([]byte, 0, headerSize+len(body))
	raw = append(raw, VersionV1, byte(compression))
	return append(raw, body...), nil
}
