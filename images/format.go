package images

import (
	"strings"
)

// ImageFormat represents supported image formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// ParseFormat maps a decoder name or a file extension to an ImageFormat.
//
// Arguments:
//   - name: A decoder name ("jpeg") or an extension (".jpg").
//
// Returns:
//   - ImageFormat: The format, or "" if unsupported.
func ParseFormat(name string) ImageFormat {
	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "bmp":
		return FormatBMP
	case "webp":
		return FormatWebP
	default:
		return ""
	}
}
