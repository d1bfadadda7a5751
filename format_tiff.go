// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	tiffByteOrderBE = 0x4D4D // "MM"
	tiffByteOrderLE = 0x4949 // "II"
	tiffMagic       = 42

	tiffTagImageWidth  = 0x0100
	tiffTagImageHeight = 0x0101
	tiffTagXMP         = 0x02BC
)

func tiffTypeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default:
		return 1
	}
}

// ReadTIFF reads width, height, and any XMP packet (tag 0x02BC) from IFD0
// of a TIFF file. Component I is read-only: spec.md §9 rules out a TIFF
// writer, since the original's attempted write path calls the generic
// writer under a name that looks like a copy-paste mistake rather than an
// intentional TIFF-specific format. WriteGeneric is the correct fallback
// for TIFF-shaped input.
func ReadTIFF(path string) (ExtractedMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return rejectedMetadata(), errors.Wrap(err, "tiff: open")
	}
	defer f.Close()
	return readTIFF(f)
}

func readTIFF(rs io.ReadSeeker) (result ExtractedMetadata, err error) {
	defer recoverWalk(&err)

	e := newReader(rs)

	var order binary.ByteOrder
	switch e.read2(binary.BigEndian) {
	case tiffByteOrderBE:
		order = binary.BigEndian
	case tiffByteOrderLE:
		order = binary.LittleEndian
	default:
		return rejectedMetadata(), nil
	}

	if e.read2(order) != tiffMagic {
		return rejectedMetadata(), nil
	}

	ifdOffset := e.read4(order)
	if ifdOffset < 8 {
		return rejectedMetadata(), nil
	}
	e.seek(int64(ifdOffset))

	numEntries := e.read2(order)
	var width, height int
	var xmpPacket string

	for i := 0; i < int(numEntries); i++ {
		tag := e.read2(order)
		typ := e.read2(order)
		count := e.read4(order)
		valueBytes := e.readNCopy(4)

		elemSize := tiffTypeSize(typ)
		totalLen := int64(elemSize) * int64(count)

		switch tag {
		case tiffTagImageWidth, tiffTagImageHeight:
			var v int
			switch typ {
			case 3: // SHORT
				v = int(order.Uint16(valueBytes[:2]))
			case 4: // LONG
				v = int(order.Uint32(valueBytes[:4]))
			}
			if tag == tiffTagImageWidth {
				width = v
			} else {
				height = v
			}

		case tiffTagXMP:
			if totalLen <= 4 {
				xmpPacket = stripWrapper(valueBytes[:totalLen])
			} else {
				offset := order.Uint32(valueBytes[:4])
				here := e.pos()
				e.seek(int64(offset))
				xmpPacket = stripWrapper(e.readNCopy(int(totalLen)))
				e.seek(here)
			}
		}
	}

	if width == 0 && height == 0 {
		return rejectedMetadata(), nil
	}
	packets := []string{}
	if xmpPacket != "" {
		packets = append(packets, xmpPacket)
	}
	return ExtractedMetadata{Width: width, Height: height, Packets: packets}, nil
}
