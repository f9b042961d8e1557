package buildconfig

import (
	"testing"

	"downholeloader/internal/buffer"
)

func TestDefaultsWithNoOverrides(t *testing.T) {
	if got := PrimaryAddress(); got != DefaultPrimaryAddress {
		t.Errorf("PrimaryAddress() = %#x, want %#x", got, DefaultPrimaryAddress)
	}
	if _, ok := AlternateAddress(); ok {
		t.Error("AlternateAddress() should be absent by default")
	}
	if _, ok := BroadcastAddress(); ok {
		t.Error("BroadcastAddress() should be compiled out by default")
	}
	if AllowBootPartitionWrite() {
		t.Error("AllowBootPartitionWrite() should default to false")
	}
	if JumpToAppWithBadCRC() {
		t.Error("JumpToAppWithBadCRC() should default to false")
	}
	if got := StagingPolicy(); got != buffer.DoubleBuffered {
		t.Errorf("StagingPolicy() = %v, want DoubleBuffered", got)
	}
}

func TestBuildPolicyUsesPartitionDefaults(t *testing.T) {
	p := BuildPolicy()
	if p.AllowBootWrite {
		t.Error("BuildPolicy().AllowBootWrite should default to false")
	}
	if p.ParameterLengthWords != DefaultParameterLengthWords {
		t.Errorf("ParameterLengthWords = %d, want %d", p.ParameterLengthWords, DefaultParameterLengthWords)
	}
	if p.ConfigLengthWords != DefaultConfigLengthWords {
		t.Errorf("ConfigLengthWords = %d, want %d", p.ConfigLengthWords, DefaultConfigLengthWords)
	}
}

func TestParseByteAcceptsHexAndDecimal(t *testing.T) {
	tests := []struct {
		raw    string
		want   byte
		wantOK bool
	}{
		{"0x8C", 0x8C, true},
		{"140", 140, true},
		{"  0x20  ", 0x20, true},
		{"", 0, false},
		{"not-a-number", 0, false},
		{"256", 0, false}, // out of byte range
	}
	for _, tt := range tests {
		got, ok := parseByte(tt.raw)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("parseByte(%q) = (%d, %v), want (%d, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}
