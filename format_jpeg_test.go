// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func appendJPEGSegment(buf *bytes.Buffer, marker byte, payload []byte) {
	buf.WriteByte(0xFF)
	buf.WriteByte(marker)
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(payload)+2))
	buf.Write(length[:])
	buf.Write(payload)
}

func buildMinimalJPEG(width, height uint16, standardXMP string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8}) // SOI

	if standardXMP != "" {
		payload := append(append([]byte{}, jpegStandardSig...), []byte(standardXMP)...)
		appendJPEGSegment(&buf, jpegMarkerAPP1, payload)
	}

	sof := make([]byte, 5)
	sof[0] = 8 // precision
	binary.BigEndian.PutUint16(sof[1:3], height)
	binary.BigEndian.PutUint16(sof[3:5], width)
	appendJPEGSegment(&buf, 0xC0, sof)

	appendJPEGSegment(&buf, jpegMarkerSOS, []byte{1, 1, 0, 0, 63, 0})
	buf.Write([]byte{0x00, 0x01, 0x02})
	buf.Write([]byte{0xFF, 0xD9}) // EOI
	return buf.Bytes()
}

func TestReadJPEG(t *testing.T) {
	c := qt.New(t)
	noopWarn := func(string, ...any) {}

	c.Run("dimensions without xmp", func(c *qt.C) {
		m, err := readJPEG(bytes.NewReader(buildMinimalJPEG(100, 50, "")), noopWarn)
		c.Assert(err, qt.IsNil)
		c.Assert(m.Width, qt.Equals, 100)
		c.Assert(m.Height, qt.Equals, 50)
		c.Assert(m.Packets, qt.HasLen, 0)
	})

	c.Run("standard xmp packet", func(c *qt.C) {
		m, err := readJPEG(bytes.NewReader(buildMinimalJPEG(1, 1, "<x:xmpmeta>j</x:xmpmeta>")), noopWarn)
		c.Assert(err, qt.IsNil)
		c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>j</x:xmpmeta>"})
	})

	c.Run("not a jpeg is rejected", func(c *qt.C) {
		m, err := readJPEG(bytes.NewReader([]byte{0x00, 0x01}), noopWarn)
		c.Assert(err, qt.IsNil)
		c.Assert(m.rejected(), qt.Equals, true)
	})
}

func TestWriteJPEGRoundTrip(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.jpg")
	c.Assert(os.WriteFile(src, buildMinimalJPEG(64, 48, ""), 0o644), qt.IsNil)

	dst := filepath.Join(dir, "dst.jpg")
	c.Assert(WriteJPEG(src, dst, "<x:xmpmeta>injected</x:xmpmeta>", WriterConfig{}), qt.IsNil)

	m, err := ReadJPEG(dst)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Width, qt.Equals, 64)
	c.Assert(m.Height, qt.Equals, 48)
	c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>injected</x:xmpmeta>"})

	c.Run("replacing an existing standard packet elides the old one", func(c *qt.C) {
		dst2 := filepath.Join(dir, "dst2.jpg")
		c.Assert(WriteJPEG(dst, dst2, "<x:xmpmeta>again</x:xmpmeta>", WriterConfig{}), qt.IsNil)
		m, err := ReadJPEG(dst2)
		c.Assert(err, qt.IsNil)
		c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>again</x:xmpmeta>"})
	})
}

func TestWriteJPEGAPP13GatingRequiresPhotoshopSignature(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	// A non-Photoshop APP13 (e.g. IPTC-only) must NOT trigger injection;
	// the XMP segment belongs at the next real trigger, which is SOF0.
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	appendJPEGSegment(&buf, jpegMarkerAPP13, []byte("not photoshop data"))
	sof := make([]byte, 5)
	binary.BigEndian.PutUint16(sof[1:3], 48)
	binary.BigEndian.PutUint16(sof[3:5], 64)
	appendJPEGSegment(&buf, 0xC0, sof)
	appendJPEGSegment(&buf, jpegMarkerSOS, []byte{1, 1, 0, 0, 63, 0})
	buf.Write([]byte{0xFF, 0xD9})

	src := filepath.Join(dir, "src.jpg")
	c.Assert(os.WriteFile(src, buf.Bytes(), 0o644), qt.IsNil)

	dst := filepath.Join(dir, "dst.jpg")
	c.Assert(WriteJPEG(src, dst, "<x:xmpmeta>injected</x:xmpmeta>", WriterConfig{}), qt.IsNil)

	out, err := os.ReadFile(dst)
	c.Assert(err, qt.IsNil)

	app13Idx := bytes.Index(out, []byte("not photoshop data"))
	xmpIdx := bytes.Index(out, jpegStandardSig)
	c.Assert(app13Idx >= 0, qt.Equals, true)
	c.Assert(xmpIdx >= 0, qt.Equals, true)
	c.Assert(app13Idx < xmpIdx, qt.Equals, true, qt.Commentf("XMP must not be inserted before a non-Photoshop APP13"))

	m, err := ReadJPEG(dst)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>injected</x:xmpmeta>"})

	c.Run("a genuine Photoshop 3.0 APP13 does trigger injection before it", func(c *qt.C) {
		var buf bytes.Buffer
		buf.Write([]byte{0xFF, 0xD8})
		appendJPEGSegment(&buf, jpegMarkerAPP13, append(append([]byte{}, jpegPhotoshopSig...), []byte("resource block")...))
		appendJPEGSegment(&buf, 0xC0, sof)
		appendJPEGSegment(&buf, jpegMarkerSOS, []byte{1, 1, 0, 0, 63, 0})
		buf.Write([]byte{0xFF, 0xD9})

		src := filepath.Join(dir, "src2.jpg")
		c.Assert(os.WriteFile(src, buf.Bytes(), 0o644), qt.IsNil)
		dst := filepath.Join(dir, "dst3.jpg")
		c.Assert(WriteJPEG(src, dst, "<x:xmpmeta>injected</x:xmpmeta>", WriterConfig{}), qt.IsNil)

		out, err := os.ReadFile(dst)
		c.Assert(err, qt.IsNil)
		xmpIdx := bytes.Index(out, jpegStandardSig)
		app13Idx := bytes.Index(out, jpegPhotoshopSig)
		c.Assert(app13Idx >= 0, qt.Equals, true)
		c.Assert(xmpIdx >= 0, qt.Equals, true)
		c.Assert(xmpIdx < app13Idx, qt.Equals, true, qt.Commentf("XMP must be inserted immediately before the Photoshop APP13"))
	})
}

func TestWriteJPEGExtReassemblesSplitExtendedXMP(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.jpg")
	c.Assert(os.WriteFile(src, buildMinimalJPEG(10, 10, ""), 0o644), qt.IsNil)

	extended := strings.Repeat("A", jpegExtendedXMPMaxPart*2+500) // forces three parts
	sum := md5.Sum([]byte(extended))
	guid := strings.ToUpper(hex.EncodeToString(sum[:]))
	standard := fmt.Sprintf(`<x:xmpmeta xmpNote:HasExtendedXMP="%s"/>`, guid)

	dst := filepath.Join(dir, "dst.jpg")
	c.Assert(WriteJPEGExt(src, dst, standard, extended, WriterConfig{}), qt.IsNil)

	m, err := ReadJPEG(dst)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Packets, qt.HasLen, 2)
	c.Assert(m.Packets[0], qt.Equals, standard)
	c.Assert(m.Packets[1], qt.Equals, extended)
}

func TestReadJPEGDropsExtendedXMPWithoutMatchingStandardPacket(t *testing.T) {
	c := qt.New(t)

	extended := strings.Repeat("B", 100)
	sum := md5.Sum([]byte(extended))
	guid := strings.ToUpper(hex.EncodeToString(sum[:]))

	var warnings []string

	// Build the extended segment directly since emitJPEGXMP always pairs
	// it with a standard packet containing the matching GUID.
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	standardPayload := append(append([]byte{}, jpegStandardSig...), []byte("<x:xmpmeta>no guid here</x:xmpmeta>")...)
	appendJPEGSegment(&buf, jpegMarkerAPP1, standardPayload)

	extPart := append(append([]byte{}, jpegExtendedSig...), []byte(guid)...)
	var lenBuf, offBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(extended)))
	binary.BigEndian.PutUint32(offBuf[:], 0)
	extPart = append(extPart, lenBuf[:]...)
	extPart = append(extPart, offBuf[:]...)
	extPart = append(extPart, []byte(extended)...)
	appendJPEGSegment(&buf, jpegMarkerAPP1, extPart)

	sof := make([]byte, 5)
	binary.BigEndian.PutUint16(sof[1:3], 10)
	binary.BigEndian.PutUint16(sof[3:5], 10)
	appendJPEGSegment(&buf, 0xC0, sof)
	appendJPEGSegment(&buf, jpegMarkerSOS, []byte{1, 1, 0, 0, 63, 0})
	buf.Write([]byte{0xFF, 0xD9})

	m, err := readJPEG(bytes.NewReader(buf.Bytes()), func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})
	c.Assert(err, qt.IsNil)
	c.Assert(m.Packets, qt.DeepEquals, []string{"<x:xmpmeta>no guid here</x:xmpmeta>"})
	c.Assert(len(warnings) > 0, qt.Equals, true)
}
