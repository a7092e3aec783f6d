package drm

// Fourcc builds a DRM pixel format code from its four characters
func Fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats seen on the display planes
var (
	FormatC8          = Fourcc('C', '8', ' ', ' ')
	FormatRGB332      = Fourcc('R', 'G', 'B', '8')
	FormatBGR233      = Fourcc('B', 'G', 'R', '8')
	FormatXRGB4444    = Fourcc('X', 'R', '1', '2')
	FormatARGB4444    = Fourcc('A', 'R', '1', '2')
	FormatXRGB1555    = Fourcc('X', 'R', '1', '5')
	FormatARGB1555    = Fourcc('A', 'R', '1', '5')
	FormatRGB565      = Fourcc('R', 'G', '1', '6')
	FormatBGR565      = Fourcc('B', 'G', '1', '6')
	FormatRGB888      = Fourcc('R', 'G', '2', '4')
	FormatBGR888      = Fourcc('B', 'G', '2', '4')
	FormatXRGB8888    = Fourcc('X', 'R', '2', '4')
	FormatXBGR8888    = Fourcc('X', 'B', '2', '4')
	FormatRGBX8888    = Fourcc('R', 'X', '2', '4')
	FormatBGRX8888    = Fourcc('B', 'X', '2', '4')
	FormatARGB8888    = Fourcc('A', 'R', '2', '4')
	FormatABGR8888    = Fourcc('A', 'B', '2', '4')
	FormatRGBA8888    = Fourcc('R', 'A', '2', '4')
	FormatBGRA8888    = Fourcc('B', 'A', '2', '4')
	FormatXRGB2101010 = Fourcc('X', 'R', '3', '0')
	FormatARGB2101010 = Fourcc('A', 'R', '3', '0')
	FormatYUYV        = Fourcc('Y', 'U', 'Y', 'V')
	FormatYVYU        = Fourcc('Y', 'V', 'Y', 'U')
	FormatUYVY        = Fourcc('U', 'Y', 'V', 'Y')
	FormatVYUY        = Fourcc('V', 'Y', 'U', 'Y')
	FormatNV12        = Fourcc('N', 'V', '1', '2')
	FormatNV21        = Fourcc('N', 'V', '2', '1')
	FormatNV16        = Fourcc('N', 'V', '1', '6')
	FormatYUV420      = Fourcc('Y', 'U', '1', '2')
	FormatYVU420      = Fourcc('Y', 'V', '1', '2')
	FormatP010        = Fourcc('P', '0', '1', '0')

	// FormatNV12YTiledIntel is the vendor Y-tiled NV12 used for decoded video
	FormatNV12YTiledIntel = Fourcc('9', '9', '9', '6')
)

// FormatName returns the four characters of a format code
func FormatName(format uint32) string {
	if format == 0 {
		return "none"
	}
	b := []byte{byte(format), byte(format >> 8), byte(format >> 16), byte(format >> 24)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '?'
		}
	}
	return string(b)
}

// Bpp returns bits per pixel for a format, defaulting to 32
func Bpp(format uint32) int {
	switch format {
	case FormatC8, FormatRGB332, FormatBGR233:
		return 8
	case FormatNV12, FormatNV21, FormatYUV420, FormatYVU420, FormatNV12YTiledIntel:
		return 12
	case FormatXRGB4444, FormatARGB4444, FormatXRGB1555, FormatARGB1555,
		FormatRGB565, FormatBGR565,
		FormatYUYV, FormatYVYU, FormatUYVY, FormatVYUY, FormatNV16:
		return 16
	case FormatRGB888, FormatBGR888, FormatP010:
		return 24
	default:
		return 32
	}
}

// IsVideoFormat reports whether a format carries decoded video (4:2:0/4:2:2 YUV)
func IsVideoFormat(format uint32) bool {
	switch format {
	case FormatYVU420, FormatYUV420, FormatNV12, FormatNV21, FormatNV16,
		FormatNV12YTiledIntel, FormatYUYV, FormatYVYU, FormatUYVY, FormatVYUY,
		FormatP010:
		return true
	default:
		return false
	}
}

// IsNV12Format reports whether a format is NV12, linear or tiled
func IsNV12Format(format uint32) bool {
	return format == FormatNV12 || format == FormatNV12YTiledIntel
}

// FormatHasPixelAlpha reports whether a format carries a per-pixel alpha channel
func FormatHasPixelAlpha(format uint32) bool {
	switch format {
	case FormatARGB8888, FormatABGR8888, FormatRGBA8888, FormatBGRA8888,
		FormatARGB2101010, FormatARGB4444, FormatARGB1555:
		return true
	default:
		return false
	}
}
