package datasource

import (
	"regexp"
	"strings"
)

// slug 需可用作查询语言标识符: 字母数字下划线, 不能以数字开头
var slugPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Slugify 由名称派生slug: 小写, 连续的非字母数字字符折叠为单个下划线
// 同一名称的派生结果恒定
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false

	for _, r := range strings.ToLower(name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	return b.String()
}

// ValidSlug 判断slug是否为合法标识符
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}
