package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/app/repositories"
	"github.com/shashiranjanraj/vastra/pkg/cache"
	"github.com/shashiranjanraj/vastra/pkg/logger"
)

const (
	categoryTreeKey = "catalog:category_tree"
	categoryTreeTTL = time.Hour
)

// CategoryNode is one node of the nested category tree.
type CategoryNode struct {
	ID       uint           `json:"id"`
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Children []CategoryNode `json:"children,omitempty"`
}

// CatalogService serves products and the category tree. The tree is cached
// in Redis and invalidated on any category write.
type CatalogService struct {
	products *repositories.ProductRepository
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{products: repositories.NewProductRepository(db)}
}

// Products lists catalog products.
func (s *CatalogService) Products(ctx context.Context, limit, offset int) ([]models.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.products.List(ctx, limit, offset)
}

// Product returns a single product.
func (s *CatalogService) Product(ctx context.Context, id uint) (models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Product{}, ErrNotFound
		}
		return models.Product{}, err
	}
	return product, nil
}

// CategoryTree returns the nested category tree, from cache when warm.
func (s *CatalogService) CategoryTree(ctx context.Context) ([]CategoryNode, error) {
	var tree []CategoryNode
	if cache.Get(categoryTreeKey, &tree) {
		return tree, nil
	}

	categories, err := s.products.Categories(ctx)
	if err != nil {
		return nil, err
	}
	tree = buildTree(categories, nil)

	if err := cache.Set(categoryTreeKey, tree, categoryTreeTTL); err != nil {
		logger.WithCtx(ctx).Warn("category tree cache write failed", "error", err)
	}
	return tree, nil
}

// CreateCategory adds a category and invalidates the cached tree.
func (s *CatalogService) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := s.products.CreateCategory(ctx, category); err != nil {
		return err
	}
	if err := cache.Del(categoryTreeKey); err != nil {
		logger.WithCtx(ctx).Warn("category tree cache invalidation failed", "error", err)
	}
	return nil
}

func buildTree(categories []models.Category, parentID *uint) []CategoryNode {
	var nodes []CategoryNode
	for _, c := range categories {
		match := (parentID == nil && c.ParentID == nil) ||
			(parentID != nil && c.ParentID != nil && *parentID == *c.ParentID)
		if !match {
			continue
		}
		id := c.ID
		nodes = append(nodes, CategoryNode{
			ID:       c.ID,
			Name:     c.Name,
			Slug:     c.Slug,
			Children: buildTree(categories, &id),
		})
	}
	return nodes
}
