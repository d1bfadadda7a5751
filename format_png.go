// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

var pngSignature = [8]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// pngXMPKeywordPrefix is the fixed 22-byte iTXt prefix that identifies the
// XMP text chunk: keyword "XML:com.adobe.xmp", a null terminator, the
// compression flag and method (both zero), and empty language/translated
// keyword fields (each just their null terminator).
var pngXMPKeywordPrefix = append([]byte("XML:com.adobe.xmp"), 0, 0, 0, 0, 0)

var (
	pngTypeIHDR = [4]byte{'I', 'H', 'D', 'R'}
	pngTypeITXt = [4]byte{'i', 'T', 'X', 't'}
	pngTypeIEND = [4]byte{'I', 'E', 'N', 'D'}
)

// ReadPNG reads width, height, and any XMP packets from a PNG file
// (component G).
func ReadPNG(path string) (ExtractedMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return rejectedMetadata(), err
	}
	defer f.Close()
	return readPNG(f)
}

func readPNG(rs io.ReadSeeker) (result ExtractedMetadata, err error) {
	defer recoverWalk(&err)

	e := newReader(rs)
	end := e.size()

	sig := e.readN(8)
	if !bytes.Equal(sig, pngSignature[:]) {
		return rejectedMetadata(), nil
	}

	length := e.read4(binary.BigEndian)
	typ := e.readNCopy(4)
	if !bytes.Equal(typ, pngTypeIHDR[:]) || length != 13 {
		return rejectedMetadata(), nil
	}
	data := e.readNCopy(13)
	crc := e.read4(binary.BigEndian)
	if pngChunkCRC(pngTypeIHDR, data) != crc {
		return rejectedMetadata(), nil
	}
	width := int(binary.BigEndian.Uint32(data[0:4]))
	height := int(binary.BigEndian.Uint32(data[4:8]))

	var packets []string
	for e.pos() < end {
		chunkLen := e.read4(binary.BigEndian)
		chunkType := e.readNCopy(4)
		if bytes.Equal(chunkType, pngTypeITXt[:]) && int(chunkLen) >= len(pngXMPKeywordPrefix) {
			chunkData := e.readNCopy(int(chunkLen))
			e.skip(4) // CRC
			if bytes.Equal(chunkData[:len(pngXMPKeywordPrefix)], pngXMPKeywordPrefix) {
				packets = append(packets, stripWrapper(chunkData[len(pngXMPKeywordPrefix):]))
			}
			continue
		}
		e.skip(int64(chunkLen))
		e.skip(4) // CRC
		if bytes.Equal(chunkType, pngTypeIEND[:]) {
			break
		}
	}

	if packets == nil {
		packets = []string{}
	}
	return ExtractedMetadata{Width: width, Height: height, Packets: packets}, nil
}

// WritePNG streams reference to destination, inserting an iTXt XMP chunk
// immediately after IHDR and eliding any pre-existing XMP iTXt chunk. An
// empty xmp string means "pass through": no injection, and destination is
// byte-identical to reference except that a pre-existing XMP chunk is
// still elided (spec.md's "skip injection" contract).
func WritePNG(referencePath, destinationPath, xmp string, cfg WriterConfig) (err error) {
	return writePNGImpl(referencePath, destinationPath, xmp, cfg)
}

func writePNGImpl(referencePath, destinationPath, xmp string, cfg WriterConfig) (err error) {
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
	w := newWriter(dst)

	sig := e.readN(8)
	if !bytes.Equal(sig, pngSignature[:]) {
		return newMalformedf("png: bad signature")
	}
	w.write(pngSignature[:])

	length := e.read4(binary.BigEndian)
	typ := e.readNCopy(4)
	if !bytes.Equal(typ, pngTypeIHDR[:]) || length != 13 {
		return newMalformedf("png: missing IHDR")
	}
	data := e.readNCopy(13)
	crc := e.read4(binary.BigEndian)
	if pngChunkCRC(pngTypeIHDR, data) != crc {
		return newMalformedf("png: bad IHDR crc")
	}
	w.write4(binary.BigEndian, 13)
	w.write(pngTypeIHDR[:])
	w.write(data)
	w.write4(binary.BigEndian, crc)

	if xmp != "" {
		pad := cfg.padding()
		buf := &bytesWriterSink{}
		emitWrapped(newWriter(buf), xmp, true, pad)
		chunkData := append(append([]byte{}, pngXMPKeywordPrefix...), buf.b...)

		w.write4(binary.BigEndian, uint32(len(chunkData)))
		w.write(pngTypeITXt[:])
		w.write(chunkData)
		w.write4(binary.BigEndian, pngChunkCRC(pngTypeITXt, chunkData))
	}

	for e.pos() < end {
		chunkLen := e.read4(binary.BigEndian)
		chunkType := e.readNCopy(4)
		chunkData := e.readNCopy(int(chunkLen))
		chunkCRC := e.read4(binary.BigEndian)

		if bytes.Equal(chunkType, pngTypeITXt[:]) &&
			int(chunkLen) >= len(pngXMPKeywordPrefix) &&
			bytes.Equal(chunkData[:len(pngXMPKeywordPrefix)], pngXMPKeywordPrefix) {
			continue // elide stale XMP chunk
		}

		w.write4(binary.BigEndian, chunkLen)
		w.write(chunkType)
		w.write(chunkData)
		w.write4(binary.BigEndian, chunkCRC)

		if bytes.Equal(chunkType, pngTypeIEND[:]) {
			break
		}
	}

	return nil
}

// bytesWriterSink is a minimal io.Writer accumulating bytes, used to render
// a wrapped XMP payload before knowing its final length.
type bytesWriterSink struct {
	b []byte
}

func (s *bytesWriterSink) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)
	return len(p), nil
}
