// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"bytes"
	"io"
	"os"
)

// genericXMPMagicID is the XMP packet wrapper's fixed id value (see
// wrapper.go's xmpWrapPrefix), scanned for on its own rather than as part
// of the full "<?xpacket begin=...?>" processing instruction: spec.md
// §4.J's walker is a magic-id scan, not a begin-PI scan, so it still finds
// a packet in an input that carries the bare id followed directly by
// content and an end marker, with no begin PI at all.
const genericXMPMagicID = "W5M0MpCehiHzreSzNTczkc9d"

// genericFindPacket scans an arbitrary byte buffer for an XMP packet: the
// span starting just past the first `W5M0MpCehiHzreSzNTczkc9d'?>` (or
// `"?>`) magic-id match, through whichever end-marker variant ("w" or "r",
// single or double quoted) appears first afterward — excluding the end
// marker itself. This is component J's fallback for containers with no
// recognized box/marker/chunk structure (spec.md §4.J): there is no
// teacher or pack file that does byte-scanning-for-magic, since every
// other component's container format tells the walker exactly where to
// look.
func genericFindPacket(data []byte) (start, stop int, writable, found bool) {
	idx := bytes.Index(data, []byte(genericXMPMagicID))
	if idx < 0 {
		return 0, 0, false, false
	}
	afterID := idx + len(genericXMPMagicID)
	if afterID+3 > len(data) {
		return 0, 0, false, false
	}
	quote := data[afterID]
	if (quote != '\'' && quote != '"') || data[afterID+1] != '?' || data[afterID+2] != '>' {
		return 0, 0, false, false
	}
	start = afterID + 3

	type variant struct {
		marker   string
		writable bool
	}
	variants := []variant{
		{`<?xpacket end="w"?>`, true},
		{`<?xpacket end="r"?>`, false},
		{`<?xpacket end='w'?>`, true},
		{`<?xpacket end='r'?>`, false},
	}

	best, bestWritable := -1, false
	for _, v := range variants {
		if i := bytes.Index(data[start:], []byte(v.marker)); i >= 0 && (best == -1 || i < best) {
			best, bestWritable = i, v.writable
		}
	}
	if best == -1 {
		return 0, 0, false, false
	}
	return start, start + best, bestWritable, true
}

// ReadGeneric scans a file for a single XMP packet without assuming any
// container structure (component J). When a packet is found, width and
// height are WidthHeightUnknown: a generic container carries no dimension.
// When none is found, the result is the rejected (all-zero) value.
func ReadGeneric(path string) (ExtractedMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return rejectedMetadata(), err
	}
	defer f.Close()
	return readGeneric(f)
}

func readGeneric(rs io.ReadSeeker) (result ExtractedMetadata, err error) {
	defer recoverWalk(&err)

	e := newReader(rs)
	data := e.readNCopy(int(e.size()))

	start, stop, _, found := genericFindPacket(data)
	if !found {
		return rejectedMetadata(), nil
	}
	return ExtractedMetadata{
		Width:   WidthHeightUnknown,
		Height:  WidthHeightUnknown,
		Packets: []string{stripWrapper(data[start:stop])},
	}, nil
}

// WriteGeneric appends a wrapped XMP packet to the end of the file if none
// is present, or rewrites the existing packet's payload in place if one is
// found and marked writable ("w"). An in-place rewrite must fit exactly
// inside the existing packet's byte span — the surrounding magic-id match
// and end marker are left untouched, only the payload and its trailing
// padding between them are rebuilt — since nothing is known about the
// surrounding container that would let the file grow or shrink there.
func WriteGeneric(referencePath, destinationPath, xmp string, cfg WriterConfig) (err error) {
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
	data := e.readNCopy(int(e.size()))
	w := newWriter(dst)

	start, stop, writable, found := genericFindPacket(data)

	if !found {
		w.write(data)
		buf := &bytesWriterSink{}
		emitWrapped(newWriter(buf), xmp, true, cfg.padding())
		w.write(buf.b)
		return nil
	}

	if !writable {
		return newMalformedf("generic: existing xmp packet is marked read-only")
	}

	target := stop - start
	if target < len(xmp) {
		return newMalformedf("generic: existing xmp packet space (%d bytes) too small for payload (%d bytes)", target, len(xmp))
	}
	pad := target - len(xmp) + 1

	rendered := &bytesWriterSink{}
	emitWrapped(newWriter(rendered), xmp, false, pad)
	if len(rendered.b) != target {
		return newMalformedf("generic: computed padding did not fill existing space exactly")
	}

	w.write(data[:start])
	w.write(rendered.b)
	w.write(data[stop:])
	return nil
}
