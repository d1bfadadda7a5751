// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

// DefaultPadding is the default value of WriterConfig.Padding: the number
// of trailing whitespace bytes left inside a written XMP packet so that a
// later tool can rewrite the payload in place without resizing the region.
const DefaultPadding = 2000

// MinPadding is the smallest accepted WriterConfig.Padding. The original C
// source exposes this as a mutable process-wide global (xmp_writable_padding);
// per spec.md §9's Design Notes, this module instead threads it through
// each writer call as an explicit argument.
const MinPadding = 1

// WriterConfig controls how every format writer emits an XMP packet.
type WriterConfig struct {
	// Padding is the number of trailing whitespace bytes appended inside
	// the packet wrapper (see wrapper.go). Zero means DefaultPadding;
	// values below MinPadding are clamped up to MinPadding.
	Padding int

	// Warnf, if set, receives non-fatal diagnostics. No writer in this
	// package calls it. The JPEG extended-XMP warnings (a part with no
	// matching standard packet, a part overrunning its declared total, an
	// incomplete reassembly) are raised by the internal JPEG reader, and
	// ReadJPEG discards them.
	Warnf func(format string, args ...any)
}

func (c WriterConfig) padding() int {
	if c.Padding == 0 {
		return DefaultPadding
	}
	if c.Padding < MinPadding {
		return MinPadding
	}
	return c.Padding
}

func (c WriterConfig) warnf(format string, args ...any) {
	if c.Warnf == nil {
		return
	}
	c.Warnf(format, args...)
}
