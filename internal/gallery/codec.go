package gallery

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/kozaktomas/face-attendance/internal/face"
)

// File layout (little endian):
//
//	magic "FGAL" | version u16 | flags u16 | dim u32 | count u32 | payloadLen u32 | crc u32 | payload
//
// The payload holds count*dim float32 values followed by count names, each a
// u16 length and UTF-8 bytes. names[i] labels the i-th embedding. The checksum
// covers the uncompressed payload.
const (
	// FormatVersion is the only gallery file version this build reads and writes.
	FormatVersion uint16 = 1

	flagZstd   uint16 = 1 << 0
	knownFlags        = flagZstd

	headerSize = 24

	// maxPayloadBytes bounds allocations when reading untrusted files.
	maxPayloadBytes = 1 << 30
)

var fileMagic = [4]byte{'F', 'G', 'A', 'L'}

type fileHeader struct {
	Magic      [4]byte
	Version    uint16
	Flags      uint16
	Dim        uint32
	Count      uint32
	PayloadLen uint32
	CRC        uint32
}

// EncodeOptions controls how a gallery is serialized.
type EncodeOptions struct {
	// Compress stores the payload zstd-compressed.
	Compress bool
}

// Marshal serializes records into the versioned gallery format.
func Marshal(records []face.Record, opts EncodeOptions) ([]byte, error) {
	dim := 0
	if len(records) > 0 {
		dim = records[0].Dim()
	}
	if uint64(len(records)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many records: %d", len(records))
	}

	payload := make([]byte, 0, len(records)*(dim*4+16))
	for i := range records {
		if records[i].Dim() != dim {
			return nil, &InvalidEmbeddingError{Expected: dim, Actual: records[i].Dim()}
		}
		if err := face.ValidateEmbedding(records[i].Embedding); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, v := range records[i].Embedding {
			payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
		}
	}
	for i := range records {
		name := records[i].Name
		if err := face.ValidateName(name); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		payload = binary.LittleEndian.AppendUint16(payload, uint16(len(name)))
		payload = append(payload, name...)
	}

	hdr := fileHeader{
		Magic:   fileMagic,
		Version: FormatVersion,
		Dim:     uint32(dim),
		Count:   uint32(len(records)),
		CRC:     crc32.ChecksumIEEE(payload),
	}

	stored := payload
	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		stored = enc.EncodeAll(payload, nil)
		enc.Close()
		hdr.Flags |= flagZstd
	}
	if len(stored) > maxPayloadBytes {
		return nil, fmt.Errorf("gallery payload too large: %d bytes", len(stored))
	}
	hdr.PayloadLen = uint32(len(stored))

	var buf bytes.Buffer
	buf.Grow(headerSize + len(stored))
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	buf.Write(stored)
	return buf.Bytes(), nil
}

// Unmarshal decodes a gallery file. Every structural fault is reported as ErrCorruptStore.
func Unmarshal(data []byte) ([]face.Record, error) {
	if len(data) < headerSize {
		return nil, corruptf("truncated header (%d bytes)", len(data))
	}

	var hdr fileHeader
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, corruptf("reading header: %v", err)
	}
	if hdr.Magic != fileMagic {
		return nil, corruptf("bad magic %q", hdr.Magic[:])
	}
	if hdr.Version != FormatVersion {
		return nil, corruptf("unsupported version %d", hdr.Version)
	}
	if hdr.Flags&^knownFlags != 0 {
		return nil, corruptf("unknown flags 0x%04x", hdr.Flags)
	}

	stored := data[headerSize:]
	if uint64(len(stored)) != uint64(hdr.PayloadLen) {
		return nil, corruptf("payload is %d bytes, header says %d", len(stored), hdr.PayloadLen)
	}

	payload := stored
	if hdr.Flags&flagZstd != 0 {
		var err error
		if payload, err = decompress(stored); err != nil {
			return nil, corruptf("decompressing payload: %v", err)
		}
	}
	if crc32.ChecksumIEEE(payload) != hdr.CRC {
		return nil, corruptf("checksum mismatch")
	}

	return decodePayload(payload, int(hdr.Dim), int(hdr.Count))
}

func decompress(stored []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadBytes))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(stored, nil)
}

func decodePayload(payload []byte, dim, count int) ([]face.Record, error) {
	if count == 0 {
		if dim != 0 || len(payload) != 0 {
			return nil, corruptf("empty gallery with dim %d and %d payload bytes", dim, len(payload))
		}
		return nil, nil
	}
	if dim == 0 {
		return nil, corruptf("%d records with zero dimensionality", count)
	}

	embBytes := uint64(count) * uint64(dim) * 4
	if embBytes > uint64(len(payload)) {
		return nil, corruptf("embeddings need %d bytes, payload has %d", embBytes, len(payload))
	}

	records := make([]face.Record, count)
	off := 0
	for i := range records {
		emb := make([]float32, dim)
		for j := range emb {
			emb[j] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		}
		if err := face.ValidateEmbedding(emb); err != nil {
			return nil, corruptf("record %d: %v", i, err)
		}
		records[i].Embedding = emb
	}

	for i := range records {
		if len(payload)-off < 2 {
			return nil, corruptf("truncated name length for record %d", i)
		}
		n := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if len(payload)-off < n {
			return nil, corruptf("truncated name for record %d", i)
		}
		name := string(payload[off : off+n])
		off += n
		if err := face.ValidateName(name); err != nil {
			return nil, corruptf("record %d: %v", i, err)
		}
		records[i].Name = name
	}

	if off != len(payload) {
		return nil, corruptf("%d trailing bytes", len(payload)-off)
	}
	return records, nil
}
