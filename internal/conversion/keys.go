package conversion

import (
	"fmt"
	"strings"
)

// inputKey is where the index-th upload of a job is stored until the job ends.
func inputKey(jobID string, index int, mime string) string {
	return fmt.Sprintf("uploads/%s/input-%02d%s", jobID, index, extensionForMIME(mime))
}

// resultKey is where the index-th illustration of a job is stored. Result ids are these keys.
func resultKey(jobID string, index int, mime string) string {
	return fmt.Sprintf("generated/images/%s/image-%02d%s", jobID, index, extensionForMIME(mime))
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

// mimeForKey reverses extensionForMIME for stored inputs.
func mimeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".gif"):
		return "image/gif"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
