package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"convogate/internal/models"
	"convogate/internal/whatsapp"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var placeholderPattern = regexp.MustCompile(`\{\{\d+\}\}`)

const catalogCacheKey = "convogate:templates:catalog"

// CatalogSource lists the provider's approved templates.
type CatalogSource interface {
	ListTemplates(ctx context.Context) ([]whatsapp.TemplateDefinition, error)
}

// Catalog reads the approved-template catalog, caching it in redis so
// campaign fan-outs don't hammer the provider's management API.
type Catalog struct {
	Source CatalogSource
	Cache  *redis.Client
	DB     *gorm.DB
	TTL    time.Duration
}

func NewCatalog(source CatalogSource, cache *redis.Client, db *gorm.DB) *Catalog {
	return &Catalog{
		Source: source,
		Cache:  cache,
		DB:     db,
		TTL:    15 * time.Minute,
	}
}

// List returns the catalog, from cache when fresh.
func (c *Catalog) List(ctx context.Context) ([]whatsapp.TemplateDefinition, error) {
	if c.Cache != nil {
		raw, err := c.Cache.Get(ctx, catalogCacheKey).Bytes()
		if err == nil {
			var defs []whatsapp.TemplateDefinition
			if err := json.Unmarshal(raw, &defs); err == nil {
				return defs, nil
			}
		} else if err != redis.Nil {
			logrus.WithError(err).Warn("template cache read failed")
		}
	}

	defs, err := c.Source.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if raw, err := json.Marshal(defs); err == nil {
			if err := c.Cache.Set(ctx, catalogCacheKey, raw, c.TTL).Err(); err != nil {
				logrus.WithError(err).Warn("template cache write failed")
			}
		}
	}

	return defs, nil
}

// Find returns the approved template with the given name, or an error when
// the catalog has no such template.
func (c *Catalog) Find(ctx context.Context, name string) (*whatsapp.TemplateDefinition, error) {
	defs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].Name == name {
			return &defs[i], nil
		}
	}
	return nil, fmt.Errorf("template %q not found in catalog", name)
}

// Sync persists the current catalog into the local templates table and
// returns how many rows were stored.
func (c *Catalog) Sync(ctx context.Context) (int, error) {
	defs, err := c.Source.ListTemplates(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, def := range defs {
		componentsJSON := "[]"
		if raw, err := json.Marshal(def.Components); err == nil {
			componentsJSON = string(raw)
		}

		row := models.Template{
			ID:         def.ID,
			Name:       def.Name,
			Language:   def.Language,
			Category:   def.Category,
			Status:     def.Status,
			Components: componentsJSON,
		}
		if err := c.DB.Save(&row).Error; err != nil {
			logrus.WithError(err).WithField("template", def.Name).Error("failed to save template")
			continue
		}
		synced++
	}

	return synced, nil
}
