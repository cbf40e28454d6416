// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package plugin

import (
	"fmt"
	"hash/fnv"
)

// PathHash returns a stable 32-bit checksum of a source location. It depends
// only on the path string, so keys derived from one file survive reloads of
// unrelated files.
func PathHash(location string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(location))
	return h.Sum32()
}

// Key derives the globally unique plugin key for the descriptor at the given
// index within a source location. Keys are stable across reloads that do not
// change the file's descriptor count or order.
func Key(location string, index int) string {
	return fmt.Sprintf("%08x-%d", PathHash(location), index)
}
