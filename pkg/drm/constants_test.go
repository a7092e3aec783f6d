//go:build unit

package drm

import "testing"

func TestIoctlSetPlaneCode(t *testing.T) {
	cmd := ioctlModeSetPlane

	dir := (cmd >> IocDirShift) & 0x3
	if dir != IocRead|IocWrite {
		t.Errorf("direction = %d, expected %d (read/write)", dir, IocRead|IocWrite)
	}

	typ := (cmd >> IocTypeShift) & 0xff
	if typ != uint32(DrmIoctlBase) {
		t.Errorf("type = 0x%02x, expected 0x%02x", typ, DrmIoctlBase)
	}

	nr := (cmd >> IocNrShift) & 0xff
	if nr != IoctlModeSetPlane {
		t.Errorf("nr = 0x%02x, expected 0x%02x", nr, IoctlModeSetPlane)
	}

	size := (cmd >> IocSizeShift) & 0x3fff
	if size != uint32(SizeOfModeSetPlane) {
		t.Errorf("size = %d, expected %d", size, SizeOfModeSetPlane)
	}
}

func TestIoctlCodesMatchLibdrm(t *testing.T) {
	// Values as printed by libdrm's DRM_IOCTL_* macros on x86_64
	tests := []struct {
		name     string
		cmd      uint32
		expected uint32
	}{
		{"MODE_GETRESOURCES", ioctlModeGetResources, 0xc04064a0},
		{"MODE_GETCONNECTOR", ioctlModeGetConnector, 0xc05064a7},
		{"MODE_GETPLANERESOURCES", ioctlModeGetPlaneResources, 0xc01064b5},
		{"MODE_GETPLANE", ioctlModeGetPlane, 0xc02064b6},
		{"MODE_SETPLANE", ioctlModeSetPlane, 0xc03064b7},
		{"MODE_ADDFB2", ioctlModeAddFB2, 0xc06864b8},
		{"MODE_PAGE_FLIP", ioctlModePageFlip, 0xc01864b0},
		{"GEM_OPEN", ioctlGemOpen, 0xc010640b},
		{"GEM_CLOSE", ioctlGemClose, 0x40086409},
	}

	for _, tt := range tests {
		if tt.cmd != tt.expected {
			t.Errorf("%s = 0x%08x, expected 0x%08x", tt.name, tt.cmd, tt.expected)
		}
		if name := IoctlName(tt.cmd); name != tt.name {
			t.Errorf("IoctlName(0x%08x) = %s, expected %s", tt.cmd, name, tt.name)
		}
	}
}

func TestStructSizes(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"ModeInfo", SizeOfModeInfo, 68},
		{"ModeCardRes", SizeOfModeCardRes, 64},
		{"ModeGetConnector", SizeOfModeGetConnector, 80},
		{"ModeGetPlaneRes", SizeOfModeGetPlaneRes, 16},
		{"ModeGetPlane", SizeOfModeGetPlane, 32},
		{"ModeSetPlane", SizeOfModeSetPlane, 48},
		{"ModeFbCmd2", SizeOfModeFbCmd2, 104},
		{"ModeCrtcPageFlip", SizeOfModeCrtcPageFlip, 24},
		{"GemOpen", SizeOfGemOpen, 16},
		{"GemClose", SizeOfGemClose, 8},
	}

	for _, tt := range tests {
		if tt.size != tt.expected {
			t.Errorf("sizeof(%s) = %d, expected %d", tt.name, tt.size, tt.expected)
		}
	}
}

func TestIsRenderCompressed(t *testing.T) {
	if !IsRenderCompressed(ModIntelYTiledCCS) || !IsRenderCompressed(ModIntelYfTiledCCS) {
		t.Error("CCS modifiers should be render compressed")
	}
	if IsRenderCompressed(ModIntelYTiled) || IsRenderCompressed(ModLinear) {
		t.Error("plain tiling should not be render compressed")
	}
	if ModIntelXTiled != 0x0100000000000001 {
		t.Errorf("ModIntelXTiled = 0x%x", ModIntelXTiled)
	}
}

func TestFixed16(t *testing.T) {
	if got := Fixed16(1920 << 16); got != 1920 {
		t.Errorf("Fixed16(1920<<16) = %v, expected 1920", got)
	}
	if got := Fixed16(0x8000); got != 0.5 {
		t.Errorf("Fixed16(0x8000) = %v, expected 0.5", got)
	}
	if got := ToFixed16(12.25); got != 12<<16|0x4000 {
		t.Errorf("ToFixed16(12.25) = 0x%x", got)
	}
}

func TestIsRemovableConnector(t *testing.T) {
	if !IsRemovableConnector(ConnectorTypeHDMIA) {
		t.Error("HDMI should be removable")
	}
	if IsRemovableConnector(ConnectorTypeEDP) || IsRemovableConnector(ConnectorTypeDSI) {
		t.Error("panels should be fixed")
	}
}

func TestConnectorTypeName(t *testing.T) {
	if got := ConnectorTypeName(ConnectorTypeHDMIA); got != "HDMI-A" {
		t.Errorf("ConnectorTypeName(HDMIA) = %q, expected HDMI-A", got)
	}
	if got := ConnectorTypeName(99); got != "type99" {
		t.Errorf("ConnectorTypeName(99) = %q, expected type99", got)
	}
}
