package img

import "strings"

const thumbSuffix = "_thumb"

// ThumbName derives the stored name of a thumbnail from the original photo
// name: "beach.JPG" becomes "beach_thumb.JPG", "beach" becomes "beach_thumb".
func ThumbName(originalName string) string {
	i := strings.LastIndexByte(originalName, '.')
	if i < 0 {
		return originalName + thumbSuffix
	}
	return originalName[:i] + thumbSuffix + originalName[i:]
}
