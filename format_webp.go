// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

var (
	webpRIFFTag = [4]byte{'R', 'I', 'F', 'F'}
	webpWEBPTag = [4]byte{'W', 'E', 'B', 'P'}
	webpVP8     = [4]byte{'V', 'P', '8', ' '}
	webpVP8L    = [4]byte{'V', 'P', '8', 'L'}
	webpVP8X    = [4]byte{'V', 'P', '8', 'X'}
	webpXMPTag  = [4]byte{'X', 'M', 'P', ' '}
)

const (
	webpXMPBit   = 1 << 2
	webpAlphaBit = 1 << 4
)

// ReadWebP reads canvas dimensions (from VP8X, or from the lone VP8/VP8L
// frame) and any XMP chunk from a WebP/RIFF file (component H).
func ReadWebP(path string) (ExtractedMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return rejectedMetadata(), err
	}
	defer f.Close()
	return readWebP(f)
}

func readWebP(rs io.ReadSeeker) (result ExtractedMetadata, err error) {
	defer recoverWalk(&err)

	e := newReader(rs)
	end := e.size()

	if !bytes.Equal(e.readNCopy(4), webpRIFFTag[:]) {
		return rejectedMetadata(), nil
	}
	e.skip(4) // RIFF size, recomputed on write
	if !bytes.Equal(e.readNCopy(4), webpWEBPTag[:]) {
		return rejectedMetadata(), nil
	}

	var (
		width, height int
		packets       []string
	)

	for e.pos()+8 <= end {
		var fourcc [4]byte
		copy(fourcc[:], e.readNCopy(4))
		chunkLen := e.read4(binary.LittleEndian)
		data := e.readNCopy(int(chunkLen))
		if chunkLen%2 == 1 {
			e.skip(1)
		}

		switch fourcc {
		case webpVP8X:
			if len(data) >= 10 {
				w := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16
				h := uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16
				width, height = int(w)+1, int(h)+1
			}
		case webpVP8:
			if width == 0 && height == 0 {
				if w, h, ok := webpVP8Dims(data); ok {
					width, height = w, h
				}
			}
		case webpVP8L:
			if width == 0 && height == 0 {
				if w, h, ok := webpVP8LDims(data); ok {
					width, height = w, h
				}
			}
		case webpXMPTag:
			packets = append(packets, stripWrapper(data))
		}
	}

	if width == 0 && height == 0 {
		return rejectedMetadata(), nil
	}
	if packets == nil {
		packets = []string{}
	}
	return ExtractedMetadata{Width: width, Height: height, Packets: packets}, nil
}

func webpVP8Dims(data []byte) (width, height int, ok bool) {
	if len(data) < 10 || data[3] != 0x9D || data[4] != 0x01 || data[5] != 0x2A {
		return 0, 0, false
	}
	w := binary.LittleEndian.Uint16(data[6:8]) & 0x3FFF
	h := binary.LittleEndian.Uint16(data[8:10]) & 0x3FFF
	return int(w), int(h), true
}

func webpVP8LDims(data []byte) (width, height int, ok bool) {
	if len(data) < 5 || data[0] != 0x2F {
		return 0, 0, false
	}
	bits := binary.LittleEndian.Uint32(data[1:5])
	return int(bits&0x3FFF) + 1, int((bits>>14)&0x3FFF) + 1, true
}

// webpVP8LAlpha reports the alpha-used flag (bit 28 of the packed VP8L
// dimensions word), carried into VP8X's own alpha bit on promotion.
func webpVP8LAlpha(data []byte) bool {
	if len(data) < 5 || data[0] != 0x2F {
		return false
	}
	bits := binary.LittleEndian.Uint32(data[1:5])
	return bits&(1<<28) != 0
}

type webpChunk struct {
	fourcc [4]byte
	data   []byte
}

// WriteWebP streams reference into a new WebP, promoting a bare VP8/VP8L
// stream to VP8X (setting the XMP-present bit) if it isn't one already,
// dropping any existing XMP chunk, appending the new one, and rewriting
// the RIFF total-length field (component H, write side). The whole body
// is assembled in memory first since the length field precedes the data
// whose size it describes.
func WriteWebP(referencePath, destinationPath, xmp string, cfg WriterConfig) (err error) {
	src, err := os.Open(referencePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, cleanup, err := createExclusive(destinationPath)
	if err != nil {
		return err
	}
	defer func() { err = cleanup(err) }()

	defer recoverWalk(&err)

	e := newReader(src)
	end := e.size()

	if !bytes.Equal(e.readNCopy(4), webpRIFFTag[:]) {
		return newMalformedf("webp: bad RIFF tag")
	}
	e.skip(4)
	if !bytes.Equal(e.readNCopy(4), webpWEBPTag[:]) {
		return newMalformedf("webp: bad WEBP tag")
	}

	var chunks []webpChunk
	for e.pos()+8 <= end {
		var fourcc [4]byte
		copy(fourcc[:], e.readNCopy(4))
		chunkLen := e.read4(binary.LittleEndian)
		data := e.readNCopy(int(chunkLen))
		if chunkLen%2 == 1 {
			e.skip(1)
		}
		chunks = append(chunks, webpChunk{fourcc, data})
	}

	vp8xIdx := -1
	for i, c := range chunks {
		if c.fourcc == webpVP8X {
			vp8xIdx = i
		}
	}

	var synthesizedVP8X []byte
	if vp8xIdx >= 0 {
		if len(chunks[vp8xIdx].data) >= 1 {
			chunks[vp8xIdx].data[0] |= webpXMPBit
		}
	} else {
		var w, h int
		var alpha bool
		for _, c := range chunks {
			switch c.fourcc {
			case webpVP8:
				w, h, _ = webpVP8Dims(c.data)
			case webpVP8L:
				w, h, _ = webpVP8LDims(c.data)
				alpha = webpVP8LAlpha(c.data)
			}
			if w > 0 && h > 0 {
				break
			}
		}
		data := make([]byte, 10)
		data[0] = webpXMPBit
		if alpha {
			data[0] |= webpAlphaBit
		}
		ww, hh := uint32(w-1), uint32(h-1)
		data[4], data[5], data[6] = byte(ww), byte(ww>>8), byte(ww>>16)
		data[7], data[8], data[9] = byte(hh), byte(hh>>8), byte(hh>>16)
		synthesizedVP8X = data
	}

	buf := &bytesWriterSink{}
	emitWrapped(newWriter(buf), xmp, true, cfg.padding())

	var final []webpChunk
	if synthesizedVP8X != nil {
		final = append(final, webpChunk{webpVP8X, synthesizedVP8X})
	}
	for _, c := range chunks {
		if c.fourcc == webpXMPTag {
			continue // drop stale XMP chunk
		}
		final = append(final, c)
	}
	final = append(final, webpChunk{webpXMPTag, buf.b})

	body := &bytesWriterSink{}
	bw := newWriter(body)
	bw.write(webpWEBPTag[:])
	for _, c := range final {
		bw.write(c.fourcc[:])
		bw.write4(binary.LittleEndian, uint32(len(c.data)))
		bw.write(c.data)
		if len(c.data)%2 == 1 {
			bw.write1(0)
		}
	}

	w := newWriter(dst)
	w.write(webpRIFFTag[:])
	w.write4(binary.LittleEndian, uint32(len(body.b)))
	w.write(body.b)
	return nil
}
