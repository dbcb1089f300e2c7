package model

import (
	"fmt"
	"strings"
	"time"
)

// EventKind — тип события жизненного цикла архива.
type EventKind string

const (
	// EventUpload — архив загружен на ленту.
	EventUpload EventKind = "upload"
	// EventVerification — архив проверен (восстановлен и сверен).
	EventVerification EventKind = "verification"
	// EventRemoval — архив удалён с локального диска.
	EventRemoval EventKind = "removal"
)

// EventKinds — все типы событий в порядке жизненного цикла.
var EventKinds = []EventKind{EventUpload, EventVerification, EventRemoval}

// ParseEventKind разбирает строковое имя типа события.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("неизвестный тип события %q", s)
	}
	return k, nil
}

// Valid сообщает, является ли тип события одним из известных.
func (k EventKind) Valid() bool {
	switch k {
	case EventUpload, EventVerification, EventRemoval:
		return true
	}
	return false
}

// Table возвращает имя таблицы журнала событий данного типа.
// Для неизвестного типа — пустая строка.
func (k EventKind) Table() string {
	switch k {
	case EventUpload:
		return "uploads"
	case EventVerification:
		return "verifications"
	case EventRemoval:
		return "removals"
	}
	return ""
}

func (k EventKind) String() string {
	return string(k)
}

// Event — запись журнала событий архива. Неизменяема после вставки.
type Event struct {
	// ID — монотонно возрастающий идентификатор в пределах типа
	ID int64
	// Kind — тип события
	Kind EventKind
	// ArchiveID — архив, к которому относится событие
	ArchiveID int64
	// Timestamp — момент события (UTC), назначается при записи
	Timestamp time.Time
}

// EventRecord — снимок события вместе с текущими полями архива.
type EventRecord struct {
	// ID — идентификатор события
	ID int64
	// Kind — тип события
	Kind EventKind
	// Timestamp — момент события (UTC)
	Timestamp time.Time
	// ArchiveID — идентификатор архива
	ArchiveID int64
	// Description — описание архива
	Description string
	// Path — путь архива (как сохранён при создании архива)
	Path string
	// Host — хост архива (как сохранён при создании архива)
	Host string
}

// NewEventRecord собирает снимок из события и архива.
func NewEventRecord(e *Event, a *Archive) *EventRecord {
	return &EventRecord{
		ID:          e.ID,
		Kind:        e.Kind,
		Timestamp:   e.Timestamp,
		ArchiveID:   a.ID,
		Description: a.Description,
		Path:        a.Path,
		Host:        a.Host,
	}
}
