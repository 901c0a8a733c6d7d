package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix     = "user:%d"
	PostKeyPrefix     = "post:%d"
	CategoryKeyPrefix = "category:%d"
	CategoriesActive  = "categories:active"
	CategoriesAll     = "categories:all"
)

const (
	UserTTL     = 5 * time.Minute
	PostTTL     = 2 * time.Minute
	CategoryTTL = 10 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func CategoryKey(categoryID uint) string {
	return fmt.Sprintf(CategoryKeyPrefix, categoryID)
}

func (s *Store) InvalidateUser(ctx context.Context, userID uint) {
	s.Invalidate(ctx, UserKey(userID))
}

func (s *Store) InvalidatePost(ctx context.Context, postIDs ...uint) {
	keys := make([]string, 0, len(postIDs))
	for _, id := range postIDs {
		keys = append(keys, PostKey(id))
	}
	s.Invalidate(ctx, keys...)
}

func (s *Store) InvalidateCategory(ctx context.Context, categoryID uint) {
	s.Invalidate(ctx, CategoryKey(categoryID), CategoriesActive, CategoriesAll)
}
