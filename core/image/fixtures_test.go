package image

import (
	"encoding/binary"
)

const testTimestamp = "2024:01:15 10:30:00"

// minimalJPEG is SOI, APP0/JFIF, SOS, two bytes of entropy-coded data, EOI.
func minimalJPEG() []byte {
	return []byte{
		0xFF, 0xD8,
		0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
		0xFF, 0xDA, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3F, 0x00,
		0x12, 0x34,
		0xFF, 0xD9,
	}
}

// jpegWithAPP1 inserts raw APP1 payloads directly after SOI, in order.
func jpegWithAPP1(payloads ...[]byte) []byte {
	base := minimalJPEG()
	out := append([]byte(nil), base[:2]...)
	for _, p := range payloads {
		seg := []byte{0xFF, 0xE1, 0, 0}
		binary.BigEndian.PutUint16(seg[2:], uint16(len(p)+2))
		out = append(out, seg...)
		out = append(out, p...)
	}
	return append(out, base[2:]...)
}

// minimalPNG is a 1x1 greyscale image: IHDR, one IDAT, IEND.
func minimalPNG() []byte {
	ihdr := []byte{
		0, 0, 0, 1, // width
		0, 0, 0, 1, // height
		8, 0, 0, 0, 0,
	}
	idat := []byte{0x78, 0x9C, 0x63, 0x60, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01}
	out := append([]byte(nil), pngSignature...)
	out = append(out, pngChunkBytes("IHDR", ihdr)...)
	out = append(out, pngChunkBytes("IDAT", idat)...)
	return append(out, pngChunkBytes("IEND", nil)...)
}

// pngWithEXIF adds raw eXIf chunks after IHDR, in order.
func pngWithEXIF(payloads ...[]byte) []byte {
	base := minimalPNG()
	ihdrEnd := len(pngSignature) + 12 + 13
	out := append([]byte(nil), base[:ihdrEnd]...)
	for _, p := range payloads {
		out = append(out, pngChunkBytes("eXIf", p)...)
	}
	return append(out, base[ihdrEnd:]...)
}

func riff(chunks ...[]byte) []byte {
	var body []byte
	for _, c := range chunks {
		body = append(body, c...)
	}
	out := []byte("RIFF\x00\x00\x00\x00WEBP")
	binary.LittleEndian.PutUint32(out[4:], uint32(4+len(body)))
	return append(out, body...)
}

// vp8lChunk is a lossless bitstream header for a 2x3 canvas with alpha,
// followed by filler. Its payload length is odd so the chunk is padded.
func vp8lChunk() []byte {
	p := []byte{0x2f, 0, 0, 0, 0, 0xAA, 0xBB}
	bits := uint32(2-1) | uint32(3-1)<<14 | 1<<28
	binary.LittleEndian.PutUint32(p[1:], bits)
	return riffChunkBytes("VP8L", p)
}

// vp8Chunk is a lossy key frame header for a 16x8 canvas.
func vp8Chunk() []byte {
	p := []byte{
		0x50, 0x02, 0x00, // frame tag, key frame
		0x9d, 0x01, 0x2a, // start code
		0x10, 0x00, // width 16
		0x08, 0x00, // height 8
		0xCC, 0xDD,
	}
	return riffChunkBytes("VP8 ", p)
}

// simpleWebP is a lossless file with no VP8X header.
func simpleWebP() []byte { return riff(vp8lChunk()) }

// lossyWebP is a lossy file with no VP8X header.
func lossyWebP() []byte { return riff(vp8Chunk()) }

// extendedWebP has a VP8X header (alpha flag only), an ICCP chunk and
// the bitstream.
func extendedWebP() []byte {
	return riff(
		riffChunkBytes("VP8X", vp8xPayload(vp8xFlagAlpha, 2, 3)),
		riffChunkBytes("ICCP", []byte{1, 2, 3}),
		vp8lChunk(),
	)
}

// webpWithEXIF builds an extended file carrying raw EXIF chunks after VP8X.
func webpWithEXIF(payloads ...[]byte) []byte {
	chunks := [][]byte{riffChunkBytes("VP8X", vp8xPayload(vp8xFlagAlpha|vp8xFlagExif, 2, 3))}
	for _, p := range payloads {
		chunks = append(chunks, riffChunkBytes("EXIF", p))
	}
	chunks = append(chunks, vp8lChunk())
	return riff(chunks...)
}

// containerWith wraps raw TIFF payloads into a fixture of the given format.
func containerWith(format string, payloads ...[]byte) []byte {
	switch format {
	case "jpeg":
		wrapped := make([][]byte, len(payloads))
		for i, p := range payloads {
			wrapped[i] = append(append([]byte(nil), jpegExifPrefix...), p...)
		}
		return jpegWithAPP1(wrapped...)
	case "png":
		return pngWithEXIF(payloads...)
	case "webp":
		return webpWithEXIF(payloads...)
	}
	panic("unknown fixture format " + format)
}
