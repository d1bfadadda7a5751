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
	gifSig87a = [6]byte{'G', 'I', 'F', '8', '7', 'a'}
	gifSig89a = [6]byte{'G', 'I', 'F', '8', '9', 'a'}
)

// gifAppID is the 11-byte application identifier that flags an application
// extension as carrying an XMP packet.
var gifAppID = [11]byte{'X', 'M', 'P', ' ', 'D', 'a', 't', 'a', 'X', 'M', 'P'}

// gifMagicTrailer is the 258-byte mandatory trailer following the XMP
// packet in the application extension: a leading 0x01, 256 bytes where
// t[1+i] = 0xFF-i (so the run ends in 0x00), and one final zero byte (the
// sub-block terminator), giving the two trailing zeros. This is the corrected
// invariant from spec.md — not the off-by-one layout in the C source (see
// DESIGN.md's Open Question notes).
func gifMagicTrailer() [258]byte {
	var t [258]byte
	t[0] = 0x01
	for i := 0; i < 256; i++ {
		t[1+i] = 0xFF - byte(i)
	}
	// t[257] is already 0.
	return t
}

const (
	gifIntroImage     = 0x2C
	gifIntroExtension = 0x21
	gifIntroTrailer   = 0x3B
	gifLabelApp       = 0xFF
)

// ReadGIF reads the logical-screen dimensions and any XMP packet carried
// in an "XMP DataXMP" application extension (component D).
func ReadGIF(path string) (ExtractedMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return rejectedMetadata(), err
	}
	defer f.Close()
	return readGIF(f)
}

func readGIF(rs io.ReadSeeker) (result ExtractedMetadata, err error) {
	defer recoverWalk(&err)

	e := newReader(rs)
	sig := e.readN(6)
	is89a := bytes.Equal(sig, gifSig89a[:])
	if !is89a && !bytes.Equal(sig, gifSig87a[:]) {
		return rejectedMetadata(), nil
	}

	width := int(e.read2(binary.LittleEndian))
	height := int(e.read2(binary.LittleEndian))
	if !is89a {
		// GIF87a exposes dimensions but carries no XMP.
		if width == 0 && height == 0 {
			return rejectedMetadata(), nil
		}
		return ExtractedMetadata{Width: width, Height: height, Packets: []string{}}, nil
	}

	flags := e.read1()
	e.skip(2) // background color index, pixel aspect ratio
	if flags&0x80 != 0 {
		e.skip(6 << (flags & 0x7))
	}

	var packets []string
	for {
		intro := e.read1()
		switch intro {
		case gifIntroTrailer:
			if width == 0 && height == 0 {
				return rejectedMetadata(), nil
			}
			if packets == nil {
				packets = []string{}
			}
			return ExtractedMetadata{Width: width, Height: height, Packets: packets}, nil
		case gifIntroImage:
			gifSkipImageBlock(e)
		case gifIntroExtension:
			label := e.read1()
			if label == gifLabelApp {
				n := e.read1()
				if n != 11 {
					return rejectedMetadata(), nil
				}
				appID := e.readNCopy(11)
				if bytes.Equal(appID, gifAppID[:]) {
					packet, trailerOK := gifReadXMPExtension(e)
					if !trailerOK {
						return rejectedMetadata(), nil
					}
					packets = append(packets, packet)
				} else {
					gifSkipSubBlocks(e)
				}
			} else {
				gifSkipSubBlocks(e)
			}
		default:
			return rejectedMetadata(), nil
		}
	}
}

// gifReadXMPExtension reads the XMP payload (delimited by the first 0x01
// byte) and validates the mandatory 258-byte magic trailer that follows.
func gifReadXMPExtension(e *reader) (packet string, trailerOK bool) {
	var payload []byte
	for {
		b := e.read1()
		if b == 0x01 {
			break
		}
		payload = append(payload, b)
	}
	trailer := e.readNCopy(257) // the 0x01 sentinel itself was already consumed
	want := gifMagicTrailer()
	for i := 0; i < 256; i++ {
		if trailer[i] != want[1+i] {
			return "", false
		}
	}
	if trailer[256] != 0 {
		return "", false
	}
	return stripWrapper(payload), true
}

func gifSkipSubBlocks(e *reader) {
	for {
		n := e.read1()
		if n == 0 {
			return
		}
		e.skip(int64(n))
	}
}

func gifSkipImageBlock(e *reader) {
	e.skip(8)
	flags := e.read1()
	if flags&0x80 != 0 {
		e.skip(6 << (flags & 0x7))
	}
	e.skip(1) // LZW minimum code size
	gifSkipSubBlocks(e)
}

// WriteGIF streams reference to destination, replacing or inserting an
// "XMP DataXMP" application extension carrying the wrapped xmp payload.
func WriteGIF(referencePath, destinationPath, xmp string, cfg WriterConfig) (err error) {
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

	sig := e.readN(6)
	is89a := bytes.Equal(sig, gifSig89a[:])
	if !is89a && !bytes.Equal(sig, gifSig87a[:]) {
		return newMalformedf("gif: bad signature")
	}
	w.write(gifSig89a[:])

	w.write2(binary.LittleEndian, e.read2(binary.LittleEndian))
	w.write2(binary.LittleEndian, e.read2(binary.LittleEndian))

	// Both 87a and 89a share the logical screen descriptor and block
	// layout; the writer always upgrades the signature to GIF89a (the
	// only variant that defines application extensions), matching
	// xmp_to_gif's unconditional "GIF89a" header in the C original.
	flags := e.read1()
	w.write1(flags)
	w.copyN(e.r, 2) // background color index, pixel aspect ratio
	if flags&0x80 != 0 {
		n := int64(6 << (flags & 0x7))
		w.copyN(e.r, n)
	}

	wroteXMP := xmp == ""
	for {
		intro := e.read1()
		switch intro {
		case gifIntroTrailer:
			if !wroteXMP {
				writeGIFXMPExtension(w, xmp, cfg)
			}
			w.write1(gifIntroTrailer)
			return nil
		case gifIntroImage:
			w.write1(intro)
			gifCopyImageBlock(e, w)
		case gifIntroExtension:
			label := e.read1()
			if label == gifLabelApp {
				n := e.read1()
				if n != 11 {
					return newMalformedf("gif: bad app extension length")
				}
				appID := e.readNCopy(11)
				if bytes.Equal(appID, gifAppID[:]) {
					// Discard the existing XMP extension entirely.
					_, ok := gifReadXMPExtension(e)
					if !ok {
						return newMalformedf("gif: bad xmp magic trailer")
					}
					if !wroteXMP {
						writeGIFXMPExtension(w, xmp, cfg)
						wroteXMP = true
					}
				} else {
					w.write1(gifIntroExtension)
					w.write1(label)
					w.write1(n)
					w.write(appID)
					gifCopySubBlocks(e, w)
				}
			} else {
				w.write1(gifIntroExtension)
				w.write1(label)
				gifCopySubBlocks(e, w)
			}
		default:
			return newMalformedf("gif: unknown block introducer 0x%02x", intro)
		}
	}
}

func writeGIFXMPExtension(w *writer, xmp string, cfg WriterConfig) {
	w.write1(gifIntroExtension)
	w.write1(gifLabelApp)
	w.write1(11)
	w.write(gifAppID[:])
	emitWrapped(w, xmp, true, cfg.padding())
	trailer := gifMagicTrailer()
	w.write(trailer[:])
}

func gifCopySubBlocks(e *reader, w *writer) {
	for {
		n := e.read1()
		w.write1(n)
		if n == 0 {
			return
		}
		w.copyN(e.r, int64(n))
	}
}

func gifCopyImageBlock(e *reader, w *writer) {
	w.copyN(e.r, 8)
	flags := e.read1()
	w.write1(flags)
	if flags&0x80 != 0 {
		w.copyN(e.r, 6<<(flags&0x7))
	}
	w.copyN(e.r, 1) // LZW minimum code size
	gifCopySubBlocks(e, w)
}
