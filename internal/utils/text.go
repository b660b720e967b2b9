package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	tabletUA  = regexp.MustCompile(`(?i)(tablet|ipad|playbook|silk)`)
	androidUA = regexp.MustCompile(`(?i)android`)
	mobiUA    = regexp.MustCompile(`(?i)mobi`)
	mobileUA  = regexp.MustCompile(`Mobile|Android|iP(hone|od)|IEMobile|BlackBerry|Kindle|Silk-Accelerated|(hpw|web)OS|Opera M(obi|ini)`)
)

// 设备类型取值。
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// DeviceType 根据 User-Agent 粗略判断设备类型：tablet / mobile / desktop。
// 不含 "mobi" 的 Android UA 视为平板。
func DeviceType(userAgent string) string {
	if tabletUA.MatchString(userAgent) {
		return DeviceTablet
	}
	if androidUA.MatchString(userAgent) && !mobiUA.MatchString(userAgent) {
		return DeviceTablet
	}
	if mobileUA.MatchString(userAgent) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// Initials 取姓名中前两个单词的首字母并大写，例如 "Budi Santoso" -> "BS"。
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, w := range strings.Fields(name) {
		r := []rune(w)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if n++; n == 2 {
			break
		}
	}
	return b.String()
}

// CleanTags 去除标签两端空白、丢弃空项并按出现顺序去重。
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FormatDuration 将秒数格式化为 "m:ss"。
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
