package generation

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ResolutionLandscape = "1280x720"
	ResolutionPortrait  = "720x1280"
)

// ResolutionFor 竖屏比例（宽 < 高）用竖屏分辨率，其余一律横屏
func ResolutionFor(aspectRatio string) string {
	w, h, ok := parseRatio(aspectRatio)
	if ok && w < h {
		return ResolutionPortrait
	}
	return ResolutionLandscape
}

// AspectRatioOf 由像素尺寸得到约分后的比例，如 1080x1920 -> 9:16
func AspectRatioOf(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	g := gcd(width, height)
	return fmt.Sprintf("%d:%d", width/g, height/g)
}

func parseRatio(s string) (float64, float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	h, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
