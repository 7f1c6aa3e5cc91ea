// Package categories manages the expense and income category tree. Trees are
// at most two levels deep and a child always shares its parent's type.
package categories

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/storage"

	"github.com/google/uuid"
)

type NewCategory struct {
	Name     string
	Type     core.CategoryType
	ParentID string
}

func (n NewCategory) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("%w: empty category name", core.ErrValidation)
	}
	if !n.Type.Valid() {
		return core.ErrInvalidType
	}
	return nil
}

// Service serves category lookups. Categories are never edited after
// creation, so FindByID results are cached per scope.
type Service struct {
	store storage.Store
	cache *cache.LRUCache[core.Category]
	newID func() string
}

func NewService(store storage.Store, c *cache.LRUCache[core.Category]) *Service {
	return &Service{store: store, cache: c, newID: uuid.NewString}
}

func cacheKey(scope core.Scope, id string) string {
	return scope.Key() + "/" + id
}

func (s *Service) Create(ctx context.Context, scope core.Scope, in NewCategory) (core.Category, error) {
	if err := scope.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}

	c := core.Category{
		ID:       s.newID(),
		Scope:    scope,
		Name:     strings.TrimSpace(in.Name),
		Type:     in.Type,
		ParentID: in.ParentID,
	}
	err := s.store.Atomic(ctx, func(tx storage.Tx) error {
		if c.ParentID != "" {
			parent, err := tx.GetCategory(ctx, scope, c.ParentID)
			if err != nil {
				return fmt.Errorf("load parent: %w", err)
			}
			if parent.ParentID != "" {
				return core.ErrNestingTooDeep
			}
			if parent.Type != c.Type {
				return fmt.Errorf("%w: child type %s differs from parent type %s", core.ErrValidation, c.Type, parent.Type)
			}
		}
		return tx.InsertCategory(ctx, c)
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category created", "category_id", c.ID, "type", c.Type, "parent_id", c.ParentID)
	return c, nil
}

// FindByID reads through r, which belongs to the caller's unit of work.
func (s *Service) FindByID(ctx context.Context, r storage.CategoryTx, scope core.Scope, id string) (core.Category, error) {
	if s.cache == nil {
		return r.GetCategory(ctx, scope, id)
	}
	return s.cache.GetOrLoad(cacheKey(scope, id), func() (core.Category, error) {
		return r.GetCategory(ctx, scope, id)
	})
}

// Get is FindByID in its own read-only unit.
func (s *Service) Get(ctx context.Context, scope core.Scope, id string) (core.Category, error) {
	if err := scope.Validate(); err != nil {
		return core.Category{}, err
	}
	var out core.Category
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = s.FindByID(ctx, tx, scope, id)
		return err
	})
	return out, err
}

func (s *Service) List(ctx context.Context, scope core.Scope) ([]core.Category, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var out []core.Category
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListCategories(ctx, scope)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// ExpandWithDescendants returns ids plus the ids of their children, without
// duplicates and in first-seen order. Unknown ids fail with not found.
func (s *Service) ExpandWithDescendants(ctx context.Context, r storage.CategoryTx, scope core.Scope, ids []string) ([]string, error) {
	all, err := r.ListCategories(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	children := map[string][]string{}
	known := map[string]bool{}
	for _, c := range all {
		known[c.ID] = true
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c.ID)
		}
	}

	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range ids {
		if !known[id] {
			return nil, fmt.Errorf("%w %s", core.ErrCategoryNotFound, id)
		}
		add(id)
		for _, child := range children[id] {
			add(child)
		}
	}
	return out, nil
}
