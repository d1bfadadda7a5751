// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import "bytes"

// xmpWrapPrefix is the literal 54-byte wrapper prefix (BOM included),
// grounded on original_source/blocks/xmpblock.c's place_block.
const xmpWrapPrefix = "<?xpacket begin=\"\xEF\xBB\xBF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n"

const (
	xmpWrapSuffixWritable = "\n<?xpacket end=\"w\"?>"
	xmpWrapSuffixReadOnly = "\n<?xpacket end=\"r\"?>"
)

// emitWrapped writes (optional wrapper prefix)(payload)(pad-1 whitespace
// bytes, every 100th a newline)(optional wrapper suffix) to w and returns
// the number of bytes written. It mirrors xmpblock.c's place_block.
func emitWrapped(w *writer, payload string, wrap bool, pad int) int {
	start := 0
	if wrap {
		w.write([]byte(xmpWrapPrefix))
		start += len(xmpWrapPrefix)
	}
	w.write([]byte(payload))
	start += len(payload)
	for i := 1; i < pad; i++ {
		if i%100 == 0 {
			w.write1('\n')
		} else {
			w.write1(' ')
		}
	}
	if pad > 1 {
		start += pad - 1
	}
	if wrap {
		if pad > 0 {
			w.write([]byte(xmpWrapSuffixWritable))
			start += len(xmpWrapSuffixWritable)
		} else {
			w.write([]byte(xmpWrapSuffixReadOnly))
			start += len(xmpWrapSuffixReadOnly)
		}
	}
	return start
}

// placedSize returns the byte count emitWrapped would write, without
// writing anything, so callers can size enclosing chunk/box headers.
func placedSize(payload string, wrap bool, pad int) int {
	n := len(payload)
	if wrap {
		n += len(xmpWrapPrefix)
	}
	if pad > 1 {
		n += pad - 1
	}
	if wrap {
		if pad > 0 {
			n += len(xmpWrapSuffixWritable)
		} else {
			n += len(xmpWrapSuffixReadOnly)
		}
	}
	return n
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// stripWrapper strips leading/trailing whitespace and an optional
// begin/end xpacket processing-instruction pair from region, returning the
// bare payload. Mirrors xmpblock.c's read_block. An empty result after
// stripping is returned as "".
func stripWrapper(region []byte) string {
	start, end := 0, len(region)

	for start < end && isSpaceByte(region[start]) {
		start++
	}

	const beginMarker = "<?xpacket begin="
	if end-start >= len(beginMarker) && string(region[start:start+len(beginMarker)]) == beginMarker {
		i := start + len(beginMarker)
		for i < end && region[i] != '?' {
			i++
		}
		if i+1 < end && region[i+1] == '>' {
			start = i + 2
		}
		for start < end && isSpaceByte(region[start]) {
			start++
		}
	}

	for end > start && isSpaceByte(region[end-1]) {
		end--
	}

	const endMarkerLen = 19 // len(`<?xpacket end="X"?>`), with either quote character
	if end-start >= endMarkerLen {
		candidate := region[end-endMarkerLen : end]
		if bytes.HasPrefix(candidate, []byte(`<?xpacket end="`)) && bytes.HasSuffix(candidate, []byte(`"?>`)) {
			end -= endMarkerLen
			for end > start && isSpaceByte(region[end-1]) {
				end--
			}
		} else if bytes.HasPrefix(candidate, []byte(`<?xpacket end='`)) && bytes.HasSuffix(candidate, []byte(`'?>`)) {
			end -= endMarkerLen
			for end > start && isSpaceByte(region[end-1]) {
				end--
			}
		}
	}

	if end <= start {
		return ""
	}
	return string(region[start:end])
}
