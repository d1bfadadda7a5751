// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func buildRIFFChunk(fourcc string, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(fourcc)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func buildVP8LPayload(width, height int) []byte {
	data := make([]byte, 5)
	data[0] = 0x2F
	bits := uint32(width-1) | uint32(height-1)<<14
	binary.LittleEndian.PutUint32(data[1:5], bits)
	return data
}

func buildSimpleWebP(width, height int) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	body.Write(buildRIFFChunk("VP8L", buildVP8LPayload(width, height)))

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(body.Len()))
	buf.Write(n[:])
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestReadWebP(t *testing.T) {
	c := qt.New(t)

	c.Run("lossless payload dimensions", func(c *qt.C) {
		m, err := readWebP(bytes.NewReader(buildSimpleWebP(40, 30)))
		c.Assert(err, qt.IsNil)
		c.Assert(m.Width, qt.Equals, 40)
		c.Assert(m.Height, qt.Equals, 30)
		c.Assert(m.Packets, qt.HasLen, 0)
	})

	c.Run("vp8x dimensions and xmp chunk", func(c *qt.C) {
		vp8x := make([]byte, 10)
		vp8x[0] = webpXMPBit
		vp8x[4], vp8x[5], vp8x[6] = 9, 0, 0 // width-1 = 9
		vp8x[7], vp8x[8], vp8x[9] = 4, 0, 0 // height-1 = 4

		buf := &bytesWriterSink{}
		emitWrapped(newWriter(buf), "<x:xmpmeta>w</x:xmpmeta>", true, 0)

		var body bytes.Buffer
		body.WriteString("WEBP")
		body.Write(buildRIFFChunk("VP8X", vp8x))
		body.Write(buildRIFFChunk("XMP ", buf.b))

		var full bytes.Buffer
		full.WriteString("RIFF")
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(body.Len()))
		full.Write(n[:])
		full.Write(body.Bytes())

		m, err := readWebP(bytes.NewReader(full.Bytes()))
		c.Assert(err, qt.IsNil)
		c.Assert(m.Width, qt.Equals, 10)
		c.Assert(m.Height, qt.Equals, 5)
		c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>w</x:xmpmeta>"})
	})

	c.Run("not riff is rejected", func(c *qt.C) {
		m, err := readWebP(bytes.NewReader([]byte("not riff at all!")))
		c.Assert(err, qt.IsNil)
		c.Assert(m.rejected(), qt.Equals, true)
	})
}

func TestWriteWebPPromotesToVP8X(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.webp")
	c.Assert(os.WriteFile(src, buildSimpleWebP(16, 12), 0o644), qt.IsNil)

	dst := filepath.Join(dir, "dst.webp")
	c.Assert(WriteWebP(src, dst, "<x:xmpmeta>promoted</x:xmpmeta>", WriterConfig{}), qt.IsNil)

	m, err := ReadWebP(dst)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Width, qt.Equals, 16)
	c.Assert(m.Height, qt.Equals, 12)
	c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>promoted</x:xmpmeta>"})

	written, err := os.ReadFile(dst)
	c.Assert(err, qt.IsNil)
	c.Assert(string(written[12:16]), qt.Equals, "VP8X")

	c.Run("replacing xmp keeps a single chunk", func(c *qt.C) {
		dst2 := filepath.Join(dir, "dst2.webp")
		c.Assert(WriteWebP(dst, dst2, "<x:xmpmeta>again</x:xmpmeta>", WriterConfig{}), qt.IsNil)
		m, err := ReadWebP(dst2)
		c.Assert(err, qt.IsNil)
		c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>again</x:xmpmeta>"})
	})
}
