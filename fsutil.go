// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import "os"

// createExclusive opens destinationPath for writing with exclusive-create
// semantics: it never overwrites an existing file. The returned cleanup
// function must be deferred with the write's named error result; it closes
// the file and, if err is non-nil, unlinks the partially written
// destination before returning err unchanged.
func createExclusive(destinationPath string) (*os.File, func(err error) error, error) {
	f, err := os.OpenFile(destinationPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func(err error) error {
		closeErr := f.Close()
		if err != nil {
			os.Remove(destinationPath)
			return err
		}
		return closeErr
	}
	return f, cleanup, nil
}
