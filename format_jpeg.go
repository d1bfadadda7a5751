// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	jpegMarkerSOI   = 0xD8
	jpegMarkerEOI   = 0xD9
	jpegMarkerSOS   = 0xDA
	jpegMarkerAPP1  = 0xE1
	jpegMarkerAPP13 = 0xED
	jpegMarkerDHT   = 0xC4
	jpegMarkerDAC   = 0xCC
	jpegMarkerDNL   = 0xDC
)

var jpegStandardSig = []byte("http://ns.adobe.com/xap/1.0/\x00")      // 29 bytes
var jpegExtendedSig = []byte("http://ns.adobe.com/xmp/extension/\x00") // 35 bytes

// jpegPhotoshopSig is the 14-byte Photoshop 3.0 APP13 signature
// (xmp_to_jpeg_ext's insertion-point trigger alongside SOFn/existing XMP).
var jpegPhotoshopSig = []byte("Photoshop 3.0\x00")

const jpegExtendedXMPMaxPart = 65400

func jpegMarkerHasNoPayload(m byte) bool {
	if m == jpegMarkerSOI || m == jpegMarkerEOI || m == 0x01 {
		return true
	}
	if m >= 0xD0 && m <= 0xD7 {
		return true
	}
	return false
}

func jpegIsSOF(m byte) bool {
	return m >= 0xC0 && m <= 0xCF && m != jpegMarkerDHT && m != jpegMarkerDAC
}

// readMarker scans forward from the current position for the next marker
// code: a 0xFF byte, any number of 0xFF fill bytes, then a non-0xFF code.
func readMarker(e *reader) byte {
	for {
		b := e.read1()
		if b != 0xFF {
			stopf(newMalformedf("jpeg: expected marker, got 0x%02x", b))
		}
		code := e.read1()
		if code == 0xFF {
			continue // fill byte, keep scanning
		}
		return code
	}
}

// copyMarker mirrors readMarker but writes every byte (including fill
// bytes) through to w, for byte-exact passthrough on write.
func copyMarker(e *reader, w *writer) byte {
	for {
		b := e.read1()
		w.write1(b)
		if b != 0xFF {
			stopf(newMalformedf("jpeg: expected marker, got 0x%02x", b))
		}
		code := e.read1()
		w.write1(code)
		if code == 0xFF {
			continue
		}
		return code
	}
}

// ReadJPEG reads the maximum SOFn dimensions and any XMP packets
// (standard plus reassembled extended) from a JPEG file (component F).
func ReadJPEG(path string) (ExtractedMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return rejectedMetadata(), err
	}
	defer f.Close()
	return readJPEG(f, func(string, ...any) {})
}

type jpegExtAccumulator struct {
	total int
	data  []byte
	got   []bool
}

func readJPEG(rs io.ReadSeeker, warnf func(string, ...any)) (result ExtractedMetadata, err error) {
	defer recoverWalk(&err)

	e := newReader(rs)
	soi := e.read2(binary.BigEndian)
	if soi != 0xFFD8 {
		return rejectedMetadata(), nil
	}

	var (
		width, height int
		packets       []string
		standardSeen  string
		haveStandard  bool
		extBuffers    = map[string]*jpegExtAccumulator{}
		extOrder      []string
	)

	for {
		marker := readMarker(e)
		if jpegMarkerHasNoPayload(marker) {
			if marker == jpegMarkerEOI {
				break
			}
			continue
		}
		if marker == jpegMarkerSOS {
			break
		}

		length := e.read2(binary.BigEndian)
		if length < 2 {
			return rejectedMetadata(), nil
		}
		remaining := int(length) - 2
		payload := e.readNCopy(remaining)

		switch {
		case marker == jpegMarkerAPP1 && len(payload) >= len(jpegStandardSig) && bytes.Equal(payload[:len(jpegStandardSig)], jpegStandardSig):
			standardSeen = stripWrapper(payload[len(jpegStandardSig):])
			haveStandard = true
			packets = append(packets, standardSeen)

		case marker == jpegMarkerAPP1 && len(payload) >= len(jpegExtendedSig)+40 && bytes.Equal(payload[:len(jpegExtendedSig)], jpegExtendedSig):
			rest := payload[len(jpegExtendedSig):]
			guid := string(rest[:32])
			totalLen := int(binary.BigEndian.Uint32(rest[32:36]))
			offset := int(binary.BigEndian.Uint32(rest[36:40]))
			chunk := rest[40:]

			if !haveStandard || !strings.Contains(standardSeen, guid) {
				warnf("jpeg: extended XMP part for GUID %s has no matching standard packet, dropping", guid)
				continue
			}

			acc, ok := extBuffers[guid]
			if !ok {
				acc = &jpegExtAccumulator{total: totalLen, data: make([]byte, totalLen), got: make([]bool, totalLen)}
				extBuffers[guid] = acc
				extOrder = append(extOrder, guid)
			}
			if offset+len(chunk) > acc.total {
				warnf("jpeg: extended XMP part for GUID %s overruns declared total, dropping", guid)
				continue
			}
			copy(acc.data[offset:], chunk)
			for i := offset; i < offset+len(chunk); i++ {
				acc.got[i] = true
			}

		case jpegIsSOF(marker):
			if remaining < 5 {
				return rejectedMetadata(), nil
			}
			h := int(binary.BigEndian.Uint16(payload[1:3]))
			w := int(binary.BigEndian.Uint16(payload[3:5]))
			if h > height {
				height = h
			}
			if w > width {
				width = w
			}

		case marker == jpegMarkerDNL:
			if remaining >= 2 {
				h := int(binary.BigEndian.Uint16(payload[0:2]))
				if h > height {
					height = h
				}
			}
		}
	}

	for _, guid := range extOrder {
		acc := extBuffers[guid]
		complete := true
		for _, g := range acc.got {
			if !g {
				complete = false
				break
			}
		}
		if complete {
			packets = append(packets, stripWrapper(acc.data))
		} else {
			warnf("jpeg: extended XMP for GUID %s is incomplete, dropping", guid)
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

// WriteJPEG writes a single standard XMP APP1 segment. WriteJPEGExt also
// accepts extended XMP content, split into parts of at most
// jpegExtendedXMPMaxPart bytes.
func WriteJPEG(referencePath, destinationPath, xmp string, cfg WriterConfig) error {
	return WriteJPEGExt(referencePath, destinationPath, xmp, "", cfg)
}

func WriteJPEGExt(referencePath, destinationPath, xmp, extendedXMP string, cfg WriterConfig) (err error) {
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
	w := newWriter(dst)

	soi := e.read2(binary.BigEndian)
	if soi != 0xFFD8 {
		return newMalformedf("jpeg: bad SOI")
	}
	w.write2(binary.BigEndian, soi)

	injected := false
	emitXMP := func() {
		emitJPEGXMP(w, xmp, extendedXMP, cfg)
		injected = true
	}

	for {
		// Marker bytes (with any fill bytes) are held back until it is
		// known whether an XMP segment goes in front of this one or the
		// segment itself is dropped.
		mb := &bytesWriterSink{}
		marker := copyMarker(e, newWriter(mb))
		if jpegMarkerHasNoPayload(marker) {
			w.write(mb.b)
			if marker == jpegMarkerEOI {
				return nil
			}
			continue
		}
		if marker == jpegMarkerSOS {
			if !injected {
				// No trigger seen; this should not normally happen since
				// SOF always precedes SOS, so the stream is rejected as
				// malformed rather than silently dropping the payload.
				stopf(newMalformedf("jpeg: reached SOS before any insertion point"))
			}
			w.write(mb.b)
			// Entropy-coded scan data and any trailing markers (RST, EOI)
			// are not touched by metadata; stream the remainder verbatim.
			if _, cerr := io.Copy(w.w, e.r); cerr != nil {
				stopf(cerr)
			}
			return nil
		}

		length := e.read2(binary.BigEndian)
		if length < 2 {
			return newMalformedf("jpeg: bad segment length")
		}
		remaining := int(length) - 2
		payload := e.readNCopy(remaining)

		isStandardXMP := marker == jpegMarkerAPP1 && len(payload) >= len(jpegStandardSig) && bytes.Equal(payload[:len(jpegStandardSig)], jpegStandardSig)
		isExtendedXMP := marker == jpegMarkerAPP1 && len(payload) >= len(jpegExtendedSig) && bytes.Equal(payload[:len(jpegExtendedSig)], jpegExtendedSig)

		if isStandardXMP || isExtendedXMP {
			if !injected {
				emitXMP()
			}
			continue // always drop old XMP (standard or extension) segments
		}

		isPhotoshopAPP13 := marker == jpegMarkerAPP13 && len(payload) >= len(jpegPhotoshopSig) && bytes.Equal(payload[:len(jpegPhotoshopSig)], jpegPhotoshopSig)
		if !injected && isPhotoshopAPP13 {
			emitXMP()
		}
		if !injected && jpegIsSOF(marker) {
			emitXMP()
		}

		w.write(mb.b)
		w.write2(binary.BigEndian, length)
		w.write(payload)
	}
}

func emitJPEGXMP(w *writer, xmp, extendedXMP string, cfg WriterConfig) {
	buf := &bytesWriterSink{}
	emitWrapped(newWriter(buf), xmp, true, cfg.padding())

	segment := append(append([]byte{}, jpegStandardSig...), buf.b...)
	w.write1(0xFF)
	w.write1(jpegMarkerAPP1)
	w.write2(binary.BigEndian, uint16(len(segment)+2))
	w.write(segment)

	if extendedXMP == "" {
		return
	}

	sum := md5.Sum([]byte(extendedXMP))
	guid := strings.ToUpper(hex.EncodeToString(sum[:]))
	total := len(extendedXMP)

	for offset := 0; offset < total; offset += jpegExtendedXMPMaxPart {
		end := offset + jpegExtendedXMPMaxPart
		if end > total {
			end = total
		}
		chunk := extendedXMP[offset:end]

		part := make([]byte, 0, len(jpegExtendedSig)+32+8+len(chunk))
		part = append(part, jpegExtendedSig...)
		part = append(part, []byte(guid)...)
		var lenBuf, offBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(total))
		binary.BigEndian.PutUint32(offBuf[:], uint32(offset))
		part = append(part, lenBuf[:]...)
		part = append(part, offBuf[:]...)
		part = append(part, []byte(chunk)...)

		segLen := len(part) + 2
		if segLen > 0xFFFF {
			stopf(fmt.Errorf("jpeg: extended XMP part too large (%d bytes)", segLen))
		}
		w.write1(0xFF)
		w.write1(jpegMarkerAPP1)
		w.write2(binary.BigEndian, uint16(segLen))
		w.write(part)
	}
}
