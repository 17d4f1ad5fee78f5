package community

import "strings"

// ExtractHandle достаёт имя сообщества из ссылки в посте.
// Функция тотальна: для мусора на входе возвращает мусор, настоящую проверку
// делает Prober (BAD_HANDLE / NOT_REACHABLE).
//
//	https://www.reddit.com/r/foo/comments/abc/title/ -> foo
//	https://www.reddit.com/r/foo?ref=x               -> foo
func ExtractHandle(url string) string {
	s := afterNth(url, "/", 3)

	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "/")

	// Глубокие пути (комментарии, вики) обрезаются до первого сегмента после "r/".
	if strings.Count(s, "/") > 2 {
		s = s[:nthIndex(s, "/", 2)]
	}
	return strings.TrimPrefix(s, "r/")
}

// afterNth возвращает часть строки после n-го разделителя или всю строку,
// если разделителей меньше.
func afterNth(s, sep string, n int) string {
	i := nthIndex(s, sep, n)
	if i < 0 {
		return s
	}
	return s[i+len(sep):]
}

func nthIndex(s, sep string, n int) int {
	offset := 0
	for ; n > 0; n-- {
		i := strings.Index(s[offset:], sep)
		if i < 0 {
			return -1
		}
		offset += i
		if n > 1 {
			offset += len(sep)
		}
	}
	return offset
}
