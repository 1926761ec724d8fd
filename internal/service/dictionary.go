// dictionary.go — LRU-кэш активных словарей категорий с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable: словарь категории
// запрашивается у Registry не чаще одного раза за TTL.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
)

// DictionaryLoader — источник словарей (обычно Registry).
type DictionaryLoader interface {
	GetDictionary(ctx context.Context, categoryID int) (*model.Dictionary, error)
}

// DictionaryCache — кэш словарей с автоматическим TTL.
// Каждый экземпляр сервиса держит собственный in-memory кэш.
type DictionaryCache struct {
	loader DictionaryLoader
	cache  *expirable.LRU[int, *model.Dictionary]
}

// NewDictionaryCache создаёт кэш на maxSize категорий с временем жизни ttl.
func NewDictionaryCache(loader DictionaryLoader, maxSize int, ttl time.Duration) *DictionaryCache {
	return &DictionaryCache{
		loader: loader,
		cache:  expirable.NewLRU[int, *model.Dictionary](maxSize, nil, ttl),
	}
}

// Get возвращает словарь категории из кэша или из Registry.
// Отсутствующий словарь — ErrNotFound.
func (c *DictionaryCache) Get(ctx context.Context, categoryID int) (*model.Dictionary, error) {
	if dict, ok := c.cache.Get(categoryID); ok {
		dictionaryCacheHitsTotal.Inc()
		return dict, nil
	}
	dictionaryCacheMissesTotal.Inc()

	dict, err := c.loader.GetDictionary(ctx, categoryID)
	if err != nil {
		if errors.Is(err, registryclient.ErrNotFound) {
			return nil, fmt.Errorf("словарь категории %d: %w", categoryID, ErrNotFound)
		}
		return nil, fmt.Errorf("получение словаря категории %d: %w", categoryID, err)
	}
	if dict == nil {
		return nil, fmt.Errorf("словарь категории %d: %w", categoryID, ErrNotFound)
	}

	c.cache.Add(categoryID, dict)
	return dict, nil
}
