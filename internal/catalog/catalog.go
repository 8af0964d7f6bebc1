// Package catalog provides cached, read-mostly catalog lookups: category
// tree and product reads. Entries are memoized with a TTL (server
// Cache-Control wins over the configured default) and the whole cache is
// dropped whenever a fresh admin token is issued, since every entry was
// populated under the old token context.
package catalog

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/magento"
)

// Cache keys for catalog lookups.
const (
	keyCategoryTree = "category-tree"
	keyCategory     = "category-%d"
	keyProduct      = "product-%s"
	keyProductsIn   = "products-category-%d-p%d-s%d"
)

// Service serves catalog reads through the TTL cache.
type Service struct {
	api   *magento.Client
	cache *cache.Cache
}

// NewService creates the catalog service and hooks cache invalidation into
// admin token issuance.
func NewService(api *magento.Client, tokens *auth.Service, defaultTTL time.Duration) *Service {
	s := &Service{
		api:   api,
		cache: cache.New(defaultTTL),
	}
	tokens.OnAdminTokenIssued(s.cache.Clear)
	return s
}

// CategoryTree returns the store's category tree.
func (s *Service) CategoryTree(ctx context.Context) (*magento.Category, error) {
	v, err := s.cache.GetOrFill(keyCategoryTree, func() (any, time.Duration, error) {
		root, header, err := s.api.CategoryTree(ctx)
		if err != nil {
			return nil, 0, err
		}
		return root, cache.TTLFromHeader(header), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*magento.Category), nil
}

// Category returns one category by id.
func (s *Service) Category(ctx context.Context, id int) (*magento.Category, error) {
	v, err := s.cache.GetOrFill(fmt.Sprintf(keyCategory, id), func() (any, time.Duration, error) {
		cat, header, err := s.api.CategoryByID(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		return cat, cache.TTLFromHeader(header), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*magento.Category), nil
}

// Product returns a product by SKU.
func (s *Service) Product(ctx context.Context, sku string) (*magento.Product, error) {
	v, err := s.cache.GetOrFill(fmt.Sprintf(keyProduct, sku), func() (any, time.Duration, error) {
		p, header, err := s.api.ProductBySKU(ctx, sku)
		if err != nil {
			return nil, 0, err
		}
		return p, cache.TTLFromHeader(header), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*magento.Product), nil
}

// ProductsByCategory lists a category's products, paginated.
func (s *Service) ProductsByCategory(ctx context.Context, categoryID, page, pageSize int) (*magento.ProductList, error) {
	key := fmt.Sprintf(keyProductsIn, categoryID, page, pageSize)
	v, err := s.cache.GetOrFill(key, func() (any, time.Duration, error) {
		list, header, err := s.api.ProductsByCategory(ctx, categoryID, page, pageSize)
		if err != nil {
			return nil, 0, err
		}
		return list, cache.TTLFromHeader(header), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*magento.ProductList), nil
}

// InvalidateProduct drops one product entry, for callers that just mutated
// the product server-side.
func (s *Service) InvalidateProduct(sku string) {
	s.cache.Invalidate(fmt.Sprintf(keyProduct, sku))
}
