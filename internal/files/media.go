package files

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// IsImage reports whether the path has a known image extension
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// ResolveSendAs turns SendAuto into image or file by extension
func ResolveSendAs(s SendAs, path string) SendAs {
	switch s.Normalize() {
	case SendImage:
		return SendImage
	case SendFile:
		return SendFile
	}
	if IsImage(path) {
		return SendImage
	}
	return SendFile
}

// ValidImage checks the magic number of the file against the image
// formats chat adapters accept.
func ValidImage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return true
	case bytes.HasPrefix(head, []byte{0xFF, 0xD8}):
		return true
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return true
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return true
	case bytes.HasPrefix(head, []byte("BM")):
		return true
	}
	return false
}
