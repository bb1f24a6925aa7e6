/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

func TestParseBytesCount(t *testing.T) {
	tests := []struct {
		in      string
		want    BytesCount
		wantErr bool
	}{
		{in: "1024", want: 1024},
		{in: "32K", want: 32 * 1024},
		{in: " 10MB ", want: 10 * 1024 * 1024},
		{in: "2Gi", want: 2 * 1024 * 1024 * 1024},
		{in: "ten", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBytesCount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
	require.Equal(t, "32K", BytesCount(32*1024).String())
}
