package model

import (
	"path"
	"strings"
	"time"
)

// Archive — архивный пакет, отслеживаемый на пути к ленточному хранилищу.
// Хранится в таблице archives. Не удаляется: удаление с диска — это событие removal.
type Archive struct {
	// ID — внутренний идентификатор (bigserial)
	ID int64
	// Description — уникальное описание архива (TSM description), естественный ключ
	Description string
	// Path — путь к архиву на момент загрузки (не уникален)
	Path string
	// Host — хост, с которого архив был загружен
	Host string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// Basename возвращает последний сегмент пути архива без завершающих "/".
// Для пустого пути и корня возвращает пустую строку.
func Basename(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}

// Candidate — архив, загруженный в окне выбора и ни разу не проверенный.
type Candidate struct {
	// ArchiveID — идентификатор архива
	ArchiveID int64
	// Description — описание архива
	Description string
	// Path — путь архива
	Path string
	// Host — хост архива
	Host string
	// UploadedAt — время одной из загрузок, попавших в окно
	UploadedAt time.Time
}

// Name возвращает имя каталога архива (basename пути).
func (c *Candidate) Name() string {
	return Basename(c.Path)
}

// ArchiveStatus — сводка по архиву, вычисляемая из журналов событий.
type ArchiveStatus struct {
	// Archive — сам архив
	Archive *Archive
	// Counts — количество событий каждого типа
	Counts map[EventKind]int
	// Latest — последнее событие каждого типа (нет ключа, если событий нет)
	Latest map[EventKind]*EventRecord
}

// Verified сообщает, была ли у архива хотя бы одна проверка.
func (s *ArchiveStatus) Verified() bool {
	return s.Counts[EventVerification] > 0
}
