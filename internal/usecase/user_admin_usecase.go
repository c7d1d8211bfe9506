package usecase

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/validator"

	"golang.org/x/crypto/bcrypt"
)

type UserAdminUsecase struct {
	users repository.UserRepository
	tx    repository.TransactionManager
	clock Clock
}

func NewUserAdminUsecase(users repository.UserRepository, tx repository.TransactionManager, clock Clock) *UserAdminUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &UserAdminUsecase{users: users, tx: tx, clock: clock}
}

type UserListOutput struct {
	Users      []model.User `json:"users"`
	Pagination Pagination   `json:"pagination"`
}

type UserStats struct {
	Total  int64 `json:"total"`
	Admins int64 `json:"admins"`
	Users  int64 `json:"users"`
}

type AdminUserInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     string
}

// 空のフィールドは変更しない。Passwordは指定されたときだけ変える
type AdminUserPatch struct {
	Name     *string
	Phone    *string
	Role     *string
	Password *string
}

type ForceLogoutOutput struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

func parseRole(s string) (model.Role, error) {
	switch r := model.Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case "":
		return model.RoleCustomer, nil
	case model.RoleCustomer, model.RoleAdmin:
		return r, nil
	}
	return "", validationError("invalid role")
}

func (u *UserAdminUsecase) List(ctx context.Context, page, limit int, q string) (UserListOutput, error) {
	page, limit, err := normalizePage(page, limit, 20)
	if err != nil {
		return UserListOutput{}, err
	}
	users, total, err := u.users.List(ctx, repository.UserListFilter{Page: page, Limit: limit, Q: q})
	if err != nil {
		return UserListOutput{}, internal(err)
	}
	return UserListOutput{Users: users, Pagination: newPagination(page, limit, total)}, nil
}

func (u *UserAdminUsecase) Get(ctx context.Context, userID int64) (*model.User, error) {
	if userID <= 0 {
		return nil, validationError("invalid id")
	}
	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user")
	}
	if err != nil {
		return nil, internal(err)
	}
	return user, nil
}

func (u *UserAdminUsecase) Create(ctx context.Context, in AdminUserInput) (*model.User, error) {
	if err := validator.ValidateRegister(in.Name, in.Email, in.Password); err != nil {
		return nil, validationFrom(err)
	}
	role, err := parseRole(in.Role)
	if err != nil {
		return nil, err
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, internal(err)
	}
	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        validator.NormalizeEmail(in.Email),
		PasswordHash: string(pwHash),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
	}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict(ErrDuplicate, "email already registered")
		}
		return nil, internal(err)
	}
	return user, nil
}

func (u *UserAdminUsecase) Update(ctx context.Context, userID int64, in AdminUserPatch) (*model.User, error) {
	user, err := u.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, validationError("name is required")
		}
		user.Name = name
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Role != nil {
		role, err := parseRole(*in.Role)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}
	if in.Password != nil && *in.Password != "" {
		if len(*in.Password) < validator.MinPasswordLen {
			return nil, validationError(validator.ErrWeakPassword.Error())
		}
		pwHash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, internal(err)
		}
		user.PasswordHash = string(pwHash)
	}

	if err := u.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user")
		}
		return nil, internal(err)
	}
	return user, nil
}

// 注文のあるユーザーは削除しない
func (u *UserAdminUsecase) Delete(ctx context.Context, actorAdminUserID int64, userID int64) error {
	if actorAdminUserID <= 0 {
		return ErrUnauthorized
	}
	if userID <= 0 {
		return validationError("invalid id")
	}
	if userID == actorAdminUserID {
		return validationError("cannot delete yourself")
	}
	user, err := u.Get(ctx, userID)
	if err != nil {
		return err
	}

	return u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		n, err := r.Orders().CountByUserID(ctx, userID)
		if err != nil {
			return internal(err)
		}
		if n > 0 {
			return conflict(ErrInUse, "user has orders")
		}
		if err := r.CartItems().DeleteByUserID(ctx, userID); err != nil {
			return internal(err)
		}
		if err := u.users.Delete(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("user")
			}
			return internal(err)
		}
		return writeAudit(ctx, r, actorAdminUserID, model.AuditActionDeleteUser, model.AuditResourceUser, userID,
			map[string]string{"email": user.Email, "role": string(user.Role)}, nil, u.clock.Now())
	})
}

func (u *UserAdminUsecase) Stats(ctx context.Context) (UserStats, error) {
	total, err := u.users.Count(ctx, nil)
	if err != nil {
		return UserStats{}, internal(err)
	}
	admin := model.RoleAdmin
	admins, err := u.users.Count(ctx, &admin)
	if err != nil {
		return UserStats{}, internal(err)
	}
	return UserStats{Total: total, Admins: admins, Users: total - admins}, nil
}

// token_versionを上げて、発行済みのトークンを全部無効にする
func (u *UserAdminUsecase) ForceLogout(ctx context.Context, actorAdminUserID int64, targetUserID int64) (ForceLogoutOutput, error) {
	if actorAdminUserID <= 0 {
		return ForceLogoutOutput{}, ErrUnauthorized
	}
	if targetUserID <= 0 {
		return ForceLogoutOutput{}, validationError("invalid id")
	}

	if err := u.users.IncrementTokenVersion(ctx, targetUserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ForceLogoutOutput{}, notFound("user")
		}
		return ForceLogoutOutput{}, internal(err)
	}

	//更新後を取得してnew_token_versionを返す
	user, err := u.Get(ctx, targetUserID)
	if err != nil {
		return ForceLogoutOutput{}, err
	}

	err = u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		return writeAudit(ctx, r, actorAdminUserID, model.AuditActionForceLogout, model.AuditResourceUser, targetUserID,
			nil, map[string]int{"token_version": user.TokenVersion}, u.clock.Now())
	})
	if err != nil {
		return ForceLogoutOutput{}, err
	}

	return ForceLogoutOutput{UserID: user.ID, NewTokenVersion: user.TokenVersion}, nil
}

type AuditLogUsecase struct {
	logs repository.AuditLogRepository
}

func NewAuditLogUsecase(logs repository.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{logs: logs}
}

func (u *AuditLogUsecase) List(ctx context.Context, f repository.AuditLogFilter) ([]model.AuditLog, error) {
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Limit < 1 || f.Limit > 200 || f.Offset < 0 {
		return nil, validationError("invalid limit or offset")
	}
	logs, err := u.logs.List(ctx, f)
	if err != nil {
		return nil, internal(err)
	}
	return logs, nil
}
