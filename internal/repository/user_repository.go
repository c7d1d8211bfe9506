package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type UserListFilter struct {
	Page  int
	Limit int
	//name / email 部分一致
	Q string
}

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成（email重複はErrConflict）
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを一件取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, userID int64) error
	List(ctx context.Context, f UserListFilter) ([]model.User, int64, error)
	//roleがnilなら全件
	Count(ctx context.Context, role *model.Role) (int64, error)
	//トークンのバージョンを＋１
	IncrementTokenVersion(ctx context.Context, userID int64) error
}
