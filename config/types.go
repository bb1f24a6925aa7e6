/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// BytesCount is a size in bytes. In configuration it may be written
// as a plain number or as a human-readable string ("32K", "10MB", "1Mi").
type BytesCount uint64

// String returns the human-readable representation.
func (b BytesCount) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// ParseBytesCount parses a human-readable size.
func ParseBytesCount(s string) (BytesCount, error) {
	v := strings.TrimSpace(s)
	if num, err := strconv.ParseUint(v, 10, 64); err == nil {
		return BytesCount(num), nil
	}
	// k8s power-of-two suffixes.
	for _, suffix := range [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"} {
		if strings.HasSuffix(v, suffix) {
			v = v[:len(v)-1]
			break
		}
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid bytes format %q: %w", s, err)
	}
	return BytesCount(num), nil
}
