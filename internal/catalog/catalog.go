// Package catalog holds the static shop definitions and the daily deal rules.
package catalog

import (
	_ "embed"
	"fmt"

	"thirteen-shop/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is immutable after Load
type Catalog struct {
	DailyDealPercent int                  `yaml:"daily_deal_discount_percent"`
	VoucherItemID    string               `yaml:"voucher_item_id"`
	VoucherPercent   int                  `yaml:"voucher_discount_percent"`
	Sleeves          []models.CatalogItem `yaml:"sleeves"`
	Boards           []models.CatalogItem `yaml:"boards"`
	Items            []models.CatalogItem `yaml:"items"`
	Packs            []models.DealPack    `yaml:"packs"`
	GemBundles       []models.GemBundle   `yaml:"gem_bundles"`

	byRef map[models.ItemRef]models.CatalogItem
}

// Load parses the embedded catalog
func Load() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse builds a catalog from YAML
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c.byRef = make(map[models.ItemRef]models.CatalogItem)
	sections := []struct {
		typ   models.ItemType
		items []models.CatalogItem
	}{
		{models.ItemTypeSleeve, c.Sleeves},
		{models.ItemTypeBoard, c.Boards},
		{models.ItemTypeItem, c.Items},
	}
	for _, section := range sections {
		for i := range section.items {
			item := &section.items[i]
			item.Type = section.typ
			ref := models.ItemRef{Type: item.Type, ID: item.ID}
			if _, dup := c.byRef[ref]; dup {
				return nil, fmt.Errorf("duplicate catalog entry %s/%s", item.Type, item.ID)
			}
			if item.Currency != models.CurrencyGold && item.Currency != models.CurrencyGems {
				return nil, fmt.Errorf("catalog entry %s has unknown currency %q", item.ID, item.Currency)
			}
			c.byRef[ref] = *item
		}
	}

	for _, p := range c.Packs {
		if p.BundlePrice >= p.OriginalPrice {
			return nil, fmt.Errorf("pack %s: bundle price %d must be below original price %d",
				p.ID, p.BundlePrice, p.OriginalPrice)
		}
		if len(p.Items) == 0 {
			return nil, fmt.Errorf("pack %s has no items", p.ID)
		}
	}

	return &c, nil
}

// Lookup finds a static catalog entry (sleeve, board or store item)
func (c *Catalog) Lookup(ref models.ItemRef) (models.CatalogItem, bool) {
	item, ok := c.byRef[ref]
	return item, ok
}

// Pack returns the deal pack with the given id
func (c *Catalog) Pack(id string) (models.DealPack, bool) {
	for _, p := range c.Packs {
		if p.ID == id {
			return p, true
		}
	}
	return models.DealPack{}, false
}

// GemBundle returns the gem bundle with the given id
func (c *Catalog) GemBundle(id string) (models.GemBundle, bool) {
	for _, b := range c.GemBundles {
		if b.ID == id {
			return b, true
		}
	}
	return models.GemBundle{}, false
}

// GemBundleForPrice recognises a pure gem top-up by its price. A pack priced
// like a gem bundle in the same currency is sold as that top-up.
func (c *Catalog) GemBundleForPrice(price int64, currency models.Currency) (models.GemBundle, bool) {
	for _, b := range c.GemBundles {
		if b.Price == price && b.Currency == currency {
			return b, true
		}
	}
	return models.GemBundle{}, false
}

// IsPackOwned is true iff every item of the pack is owned individually
func IsPackOwned(p models.DealPack, profile *models.Profile) bool {
	if profile == nil || len(p.Items) == 0 {
		return false
	}
	for _, ref := range p.Items {
		if !profile.Owns(ref) {
			return false
		}
	}
	return true
}
