// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден (нет архива или нет событий).
	ErrNotFound = errors.New("ресурс не найден")
	// ErrNoCandidate — в окне выбора нет непроверенных архивов.
	ErrNoCandidate = errors.New("нет непроверенных архивов в окне выбора")
	// ErrStoreUnavailable — хранилище недоступно или операция не завершилась после повторов.
	ErrStoreUnavailable = errors.New("хранилище событий недоступно")
)
