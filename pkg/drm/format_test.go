//go:build unit

package drm

import "testing"

func TestFourcc(t *testing.T) {
	// DRM_FORMAT_XRGB8888 from drm_fourcc.h
	if FormatXRGB8888 != 0x34325258 {
		t.Errorf("FormatXRGB8888 = 0x%08x, expected 0x34325258", FormatXRGB8888)
	}
	if FormatNV12 != 0x3231564e {
		t.Errorf("FormatNV12 = 0x%08x, expected 0x3231564e", FormatNV12)
	}
}

func TestFormatName(t *testing.T) {
	tests := []struct {
		format   uint32
		expected string
	}{
		{FormatARGB8888, "AR24"},
		{FormatNV12, "NV12"},
		{0, "none"},
		{0x01020304, "????"},
	}

	for _, tt := range tests {
		if got := FormatName(tt.format); got != tt.expected {
			t.Errorf("FormatName(0x%08x) = %q, expected %q", tt.format, got, tt.expected)
		}
	}
}

func TestBpp(t *testing.T) {
	tests := []struct {
		format   uint32
		expected int
	}{
		{FormatARGB8888, 32},
		{FormatXBGR8888, 32},
		{FormatRGB565, 16},
		{FormatYUYV, 16},
		{FormatRGB888, 24},
		{FormatNV12, 12},
		{FormatNV12YTiledIntel, 12},
		{FormatC8, 8},
		{0, 32},
	}

	for _, tt := range tests {
		if got := Bpp(tt.format); got != tt.expected {
			t.Errorf("Bpp(%s) = %d, expected %d", FormatName(tt.format), got, tt.expected)
		}
	}
}

func TestFormatClassification(t *testing.T) {
	tests := []struct {
		format uint32
		video  bool
		nv12   bool
		alpha  bool
	}{
		{FormatARGB8888, false, false, true},
		{FormatABGR8888, false, false, true},
		{FormatXRGB8888, false, false, false},
		{FormatRGB565, false, false, false},
		{FormatNV12, true, true, false},
		{FormatNV12YTiledIntel, true, true, false},
		{FormatYVU420, true, false, false},
		{FormatYUYV, true, false, false},
	}

	for _, tt := range tests {
		name := FormatName(tt.format)
		if got := IsVideoFormat(tt.format); got != tt.video {
			t.Errorf("IsVideoFormat(%s) = %v, expected %v", name, got, tt.video)
		}
		if got := IsNV12Format(tt.format); got != tt.nv12 {
			t.Errorf("IsNV12Format(%s) = %v, expected %v", name, got, tt.nv12)
		}
		if got := FormatHasPixelAlpha(tt.format); got != tt.alpha {
			t.Errorf("FormatHasPixelAlpha(%s) = %v, expected %v", name, got, tt.alpha)
		}
	}
}
