package pcm

import (
	"math"
	"testing"
)

func TestFromFloat32_Clips(t *testing.T) {
	got := FromFloat32([]float32{0, 1, -1, 2, -2, 0.5})
	want := []int16{0, math.MaxInt16, -math.MaxInt16, math.MaxInt16, math.MinInt16, 16384}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestBytes_LittleEndian(t *testing.T) {
	data := Bytes([]int16{0x0102, -1})
	want := []byte{0x02, 0x01, 0xff, 0xff}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("Byte %d: expected %#x, got %#x", i, want[i], data[i])
		}
	}
	if back := FromBytes(append(data, 0x7f)); len(back) != 2 || back[0] != 0x0102 || back[1] != -1 {
		t.Errorf("Unexpected decode %v", back)
	}
}

func TestEncodeWAV(t *testing.T) {
	samples := []int16{1, -2, 3, -4}
	data, err := EncodeWAV(samples, 24000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != 44+8 {
		t.Fatalf("Expected 52 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Error("Missing RIFF/WAVE/data markers")
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 24000 || len(decoded) != 4 || decoded[3] != -4 {
		t.Errorf("Unexpected decode: rate %d samples %v", rate, decoded)
	}
}

func TestEncodeWAV_Errors(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, _, err := DecodeWAV([]byte("RIFF")); err == nil {
		t.Error("Expected error for truncated data")
	}
}
