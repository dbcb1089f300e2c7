// Пакет rbac — уровни доступа к журналу архивов.
// Уровень клиента определяется по scope из JWT: write включает read.
// Итоговый уровень = max(уровни всех совпавших scope).
package rbac

import "net/http"

// Уровни доступа в порядке возрастания привилегий.
const (
	LevelRead  = "read"
	LevelWrite = "write"
)

// levelWeight — вес уровня для сравнения.
var levelWeight = map[string]int{
	LevelRead:  1,
	LevelWrite: 2,
}

// maxLevel возвращает уровень с максимальными привилегиями из двух.
func maxLevel(a, b string) string {
	if levelWeight[a] >= levelWeight[b] {
		return a
	}
	return b
}

// HighestLevel возвращает максимальный уровень из набора.
// Если набор пуст — возвращает пустую строку.
func HighestLevel(levels []string) string {
	if len(levels) == 0 {
		return ""
	}
	highest := levels[0]
	for _, l := range levels[1:] {
		highest = maxLevel(highest, l)
	}
	return highest
}

// MapScopesToLevel определяет уровень клиента по его scope.
// Если ни один scope не совпал — возвращает пустую строку.
func MapScopesToLevel(scopes []string, readScope, writeScope string) string {
	var levels []string
	for _, s := range scopes {
		switch s {
		case writeScope:
			levels = append(levels, LevelWrite)
		case readScope:
			levels = append(levels, LevelRead)
		}
	}
	return HighestLevel(levels)
}

// RequiredLevel возвращает уровень, необходимый для HTTP-метода:
// GET и HEAD — read, остальные — write.
func RequiredLevel(method string) string {
	if method == http.MethodGet || method == http.MethodHead {
		return LevelRead
	}
	return LevelWrite
}

// Allows сообщает, достаточно ли уровня have для операции уровня need.
func Allows(have, need string) bool {
	if !IsValidLevel(have) {
		return false
	}
	return levelWeight[have] >= levelWeight[need]
}

// IsValidLevel проверяет, является ли строка допустимым уровнем.
func IsValidLevel(level string) bool {
	_, ok := levelWeight[level]
	return ok
}
