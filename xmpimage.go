// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

// Package xmpimage extracts and embeds XMP metadata packets inside a
// family of image container formats without disturbing any other content
// of the file, and reports intrinsic image dimensions when the container
// exposes them directly.
//
// Supported containers: GIF (87a/89a), the ISO Base Media File Format
// family (JPEG2000, HEIC, AVIF), JPEG (including extended XMP), PNG,
// WebP (simple lossy, lossless, and extended), TIFF (read only), and a
// generic text-scanning fallback keyed on the XMP packet magic.
//
// Each format exposes a pair of functions, Read<Format> and Write<Format>,
// except TIFF, which has only ReadTIFF.
// Readers never modify their input and return a zero ExtractedMetadata on
// any structural rejection. Writers stream a reference file to a new
// destination file, replacing or inserting exactly one XMP-bearing region;
// the destination must not already exist, and any partially written
// destination is removed on failure.
package xmpimage

// WidthHeightUnknown is used for ExtractedMetadata.Width/Height when the
// input was accepted but the container gives no indication of intrinsic
// dimensions (used by ReadGeneric when a packet is found, and by
// ReadISOBMF when no dimension box is present).
const WidthHeightUnknown = -1

// ExtractedMetadata is returned by every Read<Format> function.
type ExtractedMetadata struct {
	// Width and Height are non-negative, or both WidthHeightUnknown if the
	// input was accepted but dimensions are not derivable from the
	// container. Both are zero if and only if the input was rejected as
	// malformed, in which case Packets is also empty.
	Width, Height int

	// Packets holds every recovered XMP payload, in file order, with the
	// packet wrapper (begin/end processing instructions and padding)
	// already stripped. An empty slice means no XMP packet was present.
	Packets []string
}

func (m ExtractedMetadata) rejected() bool {
	return m.Width == 0 && m.Height == 0
}

func rejectedMetadata() ExtractedMetadata {
	return ExtractedMetadata{}
}
