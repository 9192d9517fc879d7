package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScanMode(t *testing.T) {
	tests := []struct {
		in   string
		want ScanMode
		ok   bool
	}{
		{"recent", ScanModeRecent, true},
		{" Quick ", ScanModeRecent, true},
		{"full", ScanModeFull, true},
		{"markets", ScanModeFull, true},
		{"tracked_wallets", ScanModeTrackedWallets, true},
		{"TRACKED", ScanModeTrackedWallets, true},
		{"backfill", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseScanMode(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
