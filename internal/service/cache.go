// Пакет service — бизнес-логика сервиса журнала архивов.
// ArchiveCache — LRU-кэш архивов по description с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ad_archive_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш архивов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ad_archive_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша архивов.",
	})
)

// ArchiveCache — LRU-кэш архивов с автоматическим TTL.
// Архив не меняется после создания, поэтому инвалидация не требуется:
// TTL лишь ограничивает время жизни записи в памяти.
type ArchiveCache struct {
	cache *expirable.LRU[string, *model.Archive]
}

// NewArchiveCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewArchiveCache(maxSize int, ttl time.Duration) *ArchiveCache {
	return &ArchiveCache{cache: expirable.NewLRU[string, *model.Archive](maxSize, nil, ttl)}
}

// Get возвращает архив из кэша по description.
// Обновляет Prometheus-метрики hit/miss.
func (c *ArchiveCache) Get(description string) (*model.Archive, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(description)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет архив в кэш. Вызывается только после коммита транзакции.
func (c *ArchiveCache) Set(a *model.Archive) {
	if c == nil || a == nil {
		return
	}
	c.cache.Add(a.Description, a)
}

// Len возвращает количество записей в кэше.
func (c *ArchiveCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
