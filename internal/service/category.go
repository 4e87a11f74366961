package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/observability"
)

const (
	// MaxCategoryDepth is the maximum number of ancestors a category may have.
	MaxCategoryDepth      = 8
	MaxCategoryNameLength = 20
	MaxCategoryPathLength = 150

	maxTreeLockRetries = 3
)

// errTreeMoved means the tree a category belonged to changed between the
// unlocked read and acquiring the tree lock. The transaction is retried.
var errTreeMoved = fmt.Errorf("%w: category tree changed concurrently", ErrConflict)

// CategoryStore defines the DB methods needed by the category tree.
// Satisfied by *database.Queries; narrow interface for testability.
type CategoryStore interface {
	Locker
	GetCategory(ctx context.Context, id uuid.UUID) (database.Category, error)
	GetCategoryForUpdate(ctx context.Context, id uuid.UUID) (database.Category, error)
	GetCategoryByPath(ctx context.Context, path string) (database.Category, error)
	ListCategories(ctx context.Context) ([]database.Category, error)
	ListChildCategories(ctx context.Context, parentID pgtype.UUID) ([]database.Category, error)
	ListCategoryDescendants(ctx context.Context, pattern string) ([]database.Category, error)
	CreateCategory(ctx context.Context, arg database.CreateCategoryParams) (database.Category, error)
	UpdateCategoryTree(ctx context.Context, arg database.UpdateCategoryTreeParams) (database.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteMenuItemsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error)
}

// NewCategoryStore creates a CategoryStore from a DBTX (pool or tx).
type NewCategoryStore func(db database.DBTX) CategoryStore

// CategoryUpdate describes a rename and/or a move. When MoveParent is set,
// Parent is the new parent; nil moves the category to the top level.
type CategoryUpdate struct {
	Name       *string
	MoveParent bool
	Parent     *uuid.UUID
}

// CategoryService maintains the materialized-path menu tree. Every
// structural change rewrites the path and ancestors of the affected subtree
// inside one transaction while holding the advisory lock of each tree
// involved.
type CategoryService struct {
	pool     DB
	newStore NewCategoryStore
}

// NewCategoryService creates a new CategoryService.
func NewCategoryService(pool DB, newStore NewCategoryStore) *CategoryService {
	return &CategoryService{pool: pool, newStore: newStore}
}

// Get returns a single category.
func (s *CategoryService) Get(ctx context.Context, id uuid.UUID) (database.Category, error) {
	return getCategory(ctx, s.newStore(s.pool), id)
}

// List returns every category ordered by path, which lists each parent
// before its children.
func (s *CategoryService) List(ctx context.Context) ([]database.Category, error) {
	cats, err := s.newStore(s.pool).ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// Children lists the direct children of parentID, or the top-level
// categories when parentID is nil.
func (s *CategoryService) Children(ctx context.Context, parentID *uuid.UUID) ([]database.Category, error) {
	parent := pgtype.UUID{}
	if parentID != nil {
		if _, err := s.Get(ctx, *parentID); err != nil {
			return nil, err
		}
		parent = pgtype.UUID{Bytes: *parentID, Valid: true}
	}
	cats, err := s.newStore(s.pool).ListChildCategories(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("list child categories: %w", err)
	}
	return cats, nil
}

// Descendants returns the strict descendants of a category, shallowest first.
func (s *CategoryService) Descendants(ctx context.Context, id uuid.UUID) ([]database.Category, error) {
	store := s.newStore(s.pool)
	c, err := getCategory(ctx, store, id)
	if err != nil {
		return nil, err
	}
	desc, err := store.ListCategoryDescendants(ctx, subtreePattern(c.Path))
	if err != nil {
		return nil, fmt.Errorf("list descendants: %w", err)
	}
	return desc, nil
}

// Insert creates a category under parentID, or at the top level when
// parentID is nil.
func (s *CategoryService) Insert(ctx context.Context, name string, parentID *uuid.UUID) (_ database.Category, err error) {
	if err := validateCategoryName(name); err != nil {
		return database.Category{}, err
	}
	ctx, op := observability.Start(ctx, "category.insert")
	defer op.End(&err)

	return retryTreeTx(func() (database.Category, error) {
		return s.insertTx(ctx, name, parentID)
	})
}

func (s *CategoryService) insertTx(ctx context.Context, name string, parentID *uuid.UUID) (database.Category, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Category{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	params := database.CreateCategoryParams{Name: name, Path: name, Ancestors: []uuid.UUID{}}
	if parentID != nil {
		parent, err := s.lockCategory(ctx, store, *parentID)
		if err != nil {
			if errors.Is(err, ErrCategoryNotFound) {
				return database.Category{}, ErrParentNotFound
			}
			return database.Category{}, err
		}
		if len(parent.Ancestors)+1 > MaxCategoryDepth {
			return database.Category{}, ErrMaxDepth
		}
		params.ParentID = pgtype.UUID{Bytes: parent.ID, Valid: true}
		params.Path = joinPath(parent.Path, name)
		params.Ancestors = childAncestors(parent)
	}
	if utf8.RuneCountInString(params.Path) > MaxCategoryPathLength {
		return database.Category{}, ErrPathTooLong
	}

	if err := ensurePathFree(ctx, store, params.Path, uuid.Nil); err != nil {
		return database.Category{}, err
	}

	c, err := store.CreateCategory(ctx, params)
	if err != nil {
		if isUniqueViolation(err, "menu_categories_path_key") {
			return database.Category{}, ErrDuplicateCategory
		}
		return database.Category{}, fmt.Errorf("create category: %w", err)
	}

	if err := commitTree(ctx, tx); err != nil {
		return database.Category{}, err
	}
	return c, nil
}

// Rename changes a category's name and rewrites the path of every
// descendant. Renaming to the current name is a no-op.
func (s *CategoryService) Rename(ctx context.Context, id uuid.UUID, name string) (database.Category, error) {
	return s.Update(ctx, id, CategoryUpdate{Name: &name})
}

// Reparent moves a category and its subtree under newParentID, or to the
// top level when newParentID is nil. Moving a category into its own subtree
// fails with ErrCategoryCycle and leaves the tree unchanged.
func (s *CategoryService) Reparent(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (database.Category, error) {
	return s.Update(ctx, id, CategoryUpdate{MoveParent: true, Parent: newParentID})
}

// Update applies a rename and/or a move in a single transaction.
func (s *CategoryService) Update(ctx context.Context, id uuid.UUID, upd CategoryUpdate) (_ database.Category, err error) {
	if upd.Name != nil {
		if err := validateCategoryName(*upd.Name); err != nil {
			return database.Category{}, err
		}
	}
	if upd.MoveParent && upd.Parent != nil && *upd.Parent == id {
		return database.Category{}, ErrCategoryCycle
	}
	ctx, op := observability.Start(ctx, "category.update", observability.CategoryAttr(id))
	defer op.End(&err)

	return retryTreeTx(func() (database.Category, error) {
		return s.updateTx(ctx, id, upd)
	})
}

func (s *CategoryService) updateTx(ctx context.Context, id uuid.UUID, upd CategoryUpdate) (database.Category, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Category{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Lock every tree involved, then re-read under the locks ---
	cat, err := getCategory(ctx, store, id)
	if err != nil {
		return database.Category{}, err
	}
	wantRoots := map[uuid.UUID]uuid.UUID{cat.ID: rootOf(cat)}
	var parentID uuid.UUID
	moving := upd.MoveParent && upd.Parent != nil
	if moving {
		parentID = *upd.Parent
		np, err := getCategory(ctx, store, parentID)
		if err != nil {
			if errors.Is(err, ErrCategoryNotFound) {
				return database.Category{}, ErrParentNotFound
			}
			return database.Category{}, err
		}
		wantRoots[np.ID] = rootOf(np)
	}
	keys := make([]int64, 0, len(wantRoots))
	for _, root := range wantRoots {
		keys = append(keys, treeLockKey(root))
	}
	if err := lockKeys(ctx, store, keys...); err != nil {
		return database.Category{}, fmt.Errorf("lock category tree: %w", err)
	}

	cat, err = relockCategory(ctx, store, id, wantRoots[id])
	if err != nil {
		return database.Category{}, err
	}

	// --- Compute the new position ---
	name := cat.Name
	if upd.Name != nil {
		name = *upd.Name
	}
	newParent := cat.ParentID
	newAncestors := cat.Ancestors
	parentPath := parentPathOf(cat)
	if upd.MoveParent {
		if moving {
			np, err := relockCategory(ctx, store, parentID, wantRoots[parentID])
			if err != nil {
				if errors.Is(err, ErrCategoryNotFound) {
					return database.Category{}, ErrParentNotFound
				}
				return database.Category{}, err
			}
			if isInSubtree(np, cat) {
				return database.Category{}, ErrCategoryCycle
			}
			newParent = pgtype.UUID{Bytes: np.ID, Valid: true}
			newAncestors = childAncestors(np)
			parentPath = np.Path
		} else {
			newParent = pgtype.UUID{}
			newAncestors = []uuid.UUID{}
			parentPath = ""
		}
	}

	sameParent := newParent.Valid == cat.ParentID.Valid && (!newParent.Valid || newParent.Bytes == cat.ParentID.Bytes)
	if sameParent && name == cat.Name {
		if err := tx.Commit(ctx); err != nil {
			return database.Category{}, fmt.Errorf("commit tx: %w", err)
		}
		return cat, nil
	}

	newPath := joinPath(parentPath, name)
	descendants, err := store.ListCategoryDescendants(ctx, subtreePattern(cat.Path))
	if err != nil {
		return database.Category{}, fmt.Errorf("list descendants: %w", err)
	}

	// --- Validate the whole rewritten subtree before touching it ---
	height := 0
	for _, d := range descendants {
		height = max(height, len(d.Ancestors)-len(cat.Ancestors))
		if utf8.RuneCountInString(newPath)+utf8.RuneCountInString(d.Path)-utf8.RuneCountInString(cat.Path) > MaxCategoryPathLength {
			return database.Category{}, ErrPathTooLong
		}
	}
	if len(newAncestors)+height > MaxCategoryDepth {
		return database.Category{}, ErrMaxDepth
	}
	if utf8.RuneCountInString(newPath) > MaxCategoryPathLength {
		return database.Category{}, ErrPathTooLong
	}
	if err := ensurePathFree(ctx, store, newPath, cat.ID); err != nil {
		return database.Category{}, err
	}

	// --- Rewrite self, then descendants shallowest first ---
	updated, err := store.UpdateCategoryTree(ctx, database.UpdateCategoryTreeParams{
		ID:        cat.ID,
		Name:      name,
		ParentID:  newParent,
		Path:      newPath,
		Ancestors: newAncestors,
	})
	if err != nil {
		return database.Category{}, fmt.Errorf("update category: %w", err)
	}

	prefix := childAncestors(updated)
	pathByID := map[uuid.UUID]string{cat.ID: newPath}
	for _, d := range descendants {
		idx := indexOf(d.Ancestors, cat.ID)
		if idx < 0 {
			return database.Category{}, fmt.Errorf("descendant %s: ancestors do not contain %s", d.ID, cat.ID)
		}
		anc := make([]uuid.UUID, 0, len(prefix)+len(d.Ancestors)-idx-1)
		anc = append(anc, prefix...)
		anc = append(anc, d.Ancestors[idx+1:]...)

		if err := rewriteDescendant(ctx, store, d, d.ParentID, anc, pathByID); err != nil {
			return database.Category{}, err
		}
	}

	if err := commitTree(ctx, tx); err != nil {
		return database.Category{}, err
	}
	return updated, nil
}

// Delete removes a category. Its direct children move up to its parent,
// every descendant drops it from its ancestors, and the menu items filed
// directly under it are deleted.
func (s *CategoryService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, op := observability.Start(ctx, "category.delete", observability.CategoryAttr(id))
	defer op.End(&err)

	_, err = retryTreeTx(func() (struct{}, error) {
		return struct{}{}, s.deleteTx(ctx, id)
	})
	return err
}

func (s *CategoryService) deleteTx(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	cat, err := s.lockCategory(ctx, store, id)
	if err != nil {
		return err
	}

	descendants, err := store.ListCategoryDescendants(ctx, subtreePattern(cat.Path))
	if err != nil {
		return fmt.Errorf("list descendants: %w", err)
	}

	parentPath := parentPathOf(cat)
	for _, d := range descendants {
		if !d.ParentID.Valid || d.ParentID.Bytes != cat.ID {
			continue
		}
		if err := ensurePathFree(ctx, store, joinPath(parentPath, d.Name), cat.ID); err != nil {
			return err
		}
	}

	if _, err := store.DeleteCategory(ctx, cat.ID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if _, err := store.DeleteMenuItemsByCategory(ctx, cat.ID); err != nil {
		return fmt.Errorf("delete category items: %w", err)
	}

	pathByID := map[uuid.UUID]string{cat.ID: parentPath}
	for _, d := range descendants {
		anc := make([]uuid.UUID, 0, len(d.Ancestors))
		for _, a := range d.Ancestors {
			if a != cat.ID {
				anc = append(anc, a)
			}
		}
		parent := d.ParentID
		if parent.Valid && parent.Bytes == cat.ID {
			parent = cat.ParentID
		}
		if err := rewriteDescendantFrom(ctx, store, d, d.ParentID, parent, anc, pathByID); err != nil {
			return err
		}
	}

	return commitTree(ctx, tx)
}

// lockCategory takes the lock of the category's tree and returns the
// category as read under that lock.
func (s *CategoryService) lockCategory(ctx context.Context, store CategoryStore, id uuid.UUID) (database.Category, error) {
	c, err := getCategory(ctx, store, id)
	if err != nil {
		return database.Category{}, err
	}
	root := rootOf(c)
	if err := store.AcquireXactLock(ctx, treeLockKey(root)); err != nil {
		return database.Category{}, fmt.Errorf("lock category tree: %w", err)
	}
	return relockCategory(ctx, store, id, root)
}

// relockCategory re-reads a category after its tree lock is held and fails
// with errTreeMoved if it now belongs to another tree.
func relockCategory(ctx context.Context, store CategoryStore, id, root uuid.UUID) (database.Category, error) {
	c, err := store.GetCategoryForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Category{}, ErrCategoryNotFound
		}
		return database.Category{}, fmt.Errorf("get category: %w", err)
	}
	if rootOf(c) != root {
		return database.Category{}, errTreeMoved
	}
	return c, nil
}

// rewriteDescendant stores new ancestors for d and rebuilds its path from
// its parent's already rewritten path.
func rewriteDescendant(ctx context.Context, store CategoryStore, d database.Category, parent pgtype.UUID, anc []uuid.UUID, pathByID map[uuid.UUID]string) error {
	return rewriteDescendantFrom(ctx, store, d, parent, parent, anc, pathByID)
}

func rewriteDescendantFrom(ctx context.Context, store CategoryStore, d database.Category, pathParent, newParent pgtype.UUID, anc []uuid.UUID, pathByID map[uuid.UUID]string) error {
	parentPath, ok := pathByID[uuid.UUID(pathParent.Bytes)]
	if !pathParent.Valid || !ok {
		return fmt.Errorf("descendant %s: parent %s not rewritten before child", d.ID, uuid.UUID(pathParent.Bytes))
	}
	path := joinPath(parentPath, d.Name)
	if _, err := store.UpdateCategoryTree(ctx, database.UpdateCategoryTreeParams{
		ID:        d.ID,
		Name:      d.Name,
		ParentID:  newParent,
		Path:      path,
		Ancestors: anc,
	}); err != nil {
		return fmt.Errorf("update descendant %s: %w", d.ID, err)
	}
	pathByID[d.ID] = path
	return nil
}

func retryTreeTx[T any](fn func() (T, error)) (T, error) {
	var lastErr error
	for attempt := 0; attempt < maxTreeLockRetries; attempt++ {
		v, err := fn()
		if !errors.Is(err, errTreeMoved) {
			return v, err
		}
		lastErr = err
	}
	var zero T
	return zero, lastErr
}

// commitTree commits a tree rewrite. The path constraint is deferred, so a
// concurrent insert of the same path surfaces here.
func commitTree(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err, "menu_categories_path_key") {
			return ErrDuplicateCategory
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func getCategory(ctx context.Context, store CategoryStore, id uuid.UUID) (database.Category, error) {
	c, err := store.GetCategory(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Category{}, ErrCategoryNotFound
		}
		return database.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// ensurePathFree fails with ErrDuplicateCategory if a category other than
// self already owns path.
func ensurePathFree(ctx context.Context, store CategoryStore, path string, self uuid.UUID) error {
	existing, err := store.GetCategoryByPath(ctx, path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("get category by path: %w", err)
	}
	if existing.ID != self {
		return ErrDuplicateCategory
	}
	return nil
}

func validateCategoryName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxCategoryNameLength || strings.Contains(name, "/") || strings.TrimSpace(name) != name {
		return ErrInvalidName
	}
	return nil
}

func rootOf(c database.Category) uuid.UUID {
	if len(c.Ancestors) > 0 {
		return c.Ancestors[0]
	}
	return c.ID
}

// isInSubtree reports whether c is node itself or one of its descendants.
func isInSubtree(c, node database.Category) bool {
	return c.ID == node.ID || strings.HasPrefix(c.Path, node.Path+"/") || indexOf(c.Ancestors, node.ID) >= 0
}

func childAncestors(parent database.Category) []uuid.UUID {
	anc := make([]uuid.UUID, 0, len(parent.Ancestors)+1)
	anc = append(anc, parent.Ancestors...)
	return append(anc, parent.ID)
}

// parentPathOf strips the last segment from c.Path; "" for a top-level
// category.
func parentPathOf(c database.Category) string {
	if !c.ParentID.Valid {
		return ""
	}
	return strings.TrimSuffix(c.Path, "/"+c.Name)
}

func joinPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// subtreePattern is the LIKE pattern matching the strict descendants of the
// category at path.
func subtreePattern(path string) string {
	return likeEscaper.Replace(path) + "/%"
}
