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

func buildMinimalGIF89a(width, height uint16, xmp string) []byte {
	var buf bytes.Buffer
	buf.Write(gifSig89a[:])
	var dims [4]byte
	binary.LittleEndian.PutUint16(dims[0:2], width)
	binary.LittleEndian.PutUint16(dims[2:4], height)
	buf.Write(dims[:])
	buf.WriteByte(0) // flags: no global color table
	buf.WriteByte(0) // background color index
	buf.WriteByte(0) // pixel aspect ratio

	if xmp != "" {
		buf.WriteByte(gifIntroExtension)
		buf.WriteByte(gifLabelApp)
		buf.WriteByte(11)
		buf.Write(gifAppID[:])
		emitWrapped(newWriter(&buf), xmp, true, 0)
		trailer := gifMagicTrailer()
		buf.Write(trailer[:])
	}

	buf.WriteByte(gifIntroTrailer)
	return buf.Bytes()
}

func TestReadGIF(t *testing.T) {
	c := qt.New(t)

	c.Run("89a without xmp", func(c *qt.C) {
		m, err := readGIF(bytes.NewReader(buildMinimalGIF89a(4, 6, "")))
		c.Assert(err, qt.IsNil)
		c.Assert(m.Width, qt.Equals, 4)
		c.Assert(m.Height, qt.Equals, 6)
		c.Assert(m.Packets, qt.HasLen, 0)
	})

	c.Run("89a with xmp application extension", func(c *qt.C) {
		m, err := readGIF(bytes.NewReader(buildMinimalGIF89a(4, 6, "<x:xmpmeta>g</x:xmpmeta>")))
		c.Assert(err, qt.IsNil)
		c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>g</x:xmpmeta>"})
	})

	c.Run("87a carries no xmp", func(c *qt.C) {
		var buf bytes.Buffer
		buf.Write(gifSig87a[:])
		var dims [4]byte
		binary.LittleEndian.PutUint16(dims[0:2], 2)
		binary.LittleEndian.PutUint16(dims[2:4], 3)
		buf.Write(dims[:])
		m, err := readGIF(bytes.NewReader(buf.Bytes()))
		c.Assert(err, qt.IsNil)
		c.Assert(m.Width, qt.Equals, 2)
		c.Assert(m.Height, qt.Equals, 3)
		c.Assert(m.Packets, qt.HasLen, 0)
	})

	c.Run("bad magic trailer is rejected", func(c *qt.C) {
		data := buildMinimalGIF89a(1, 1, "x")
		// Corrupt a byte inside the magic trailer.
		data[len(data)-5] ^= 0xFF
		m, err := readGIF(bytes.NewReader(data))
		c.Assert(err, qt.IsNil)
		c.Assert(m.rejected(), qt.Equals, true)
	})
}

func TestWriteGIFRoundTrip(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.gif")
	c.Assert(os.WriteFile(src, buildMinimalGIF89a(8, 9, ""), 0o644), qt.IsNil)

	dst := filepath.Join(dir, "dst.gif")
	c.Assert(WriteGIF(src, dst, "<x:xmpmeta>new</x:xmpmeta>", WriterConfig{}), qt.IsNil)

	m, err := ReadGIF(dst)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Width, qt.Equals, 8)
	c.Assert(m.Height, qt.Equals, 9)
	c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>new</x:xmpmeta>"})

	c.Run("87a source is upgraded to 89a on write", func(c *qt.C) {
		src87 := filepath.Join(dir, "src87.gif")
		var buf bytes.Buffer
		buf.Write(gifSig87a[:])
		buf.Write([]byte{1, 0, 1, 0, 0, 0, 0})
		buf.WriteByte(gifIntroTrailer)
		c.Assert(os.WriteFile(src87, buf.Bytes(), 0o644), qt.IsNil)

		dst87 := filepath.Join(dir, "dst87.gif")
		c.Assert(WriteGIF(src87, dst87, "<x:xmpmeta>up</x:xmpmeta>", WriterConfig{}), qt.IsNil)

		written, err := os.ReadFile(dst87)
		c.Assert(err, qt.IsNil)
		c.Assert(string(written[:6]), qt.Equals, "GIF89a")
	})

	c.Run("replacing xmp discards the old extension", func(c *qt.C) {
		dst2 := filepath.Join(dir, "dst2.gif")
		c.Assert(WriteGIF(dst, dst2, "<x:xmpmeta>replaced</x:xmpmeta>", WriterConfig{}), qt.IsNil)
		m, err := ReadGIF(dst2)
		c.Assert(err, qt.IsNil)
		c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>replaced</x:xmpmeta>"})
	})
}
