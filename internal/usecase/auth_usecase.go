package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/validator"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type AuthUsecase struct {
	cfg   config.Config
	users repository.UserRepository
	clock Clock
}

func NewAuthUsecase(cfg config.Config, users repository.UserRepository, clock Clock) *AuthUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AuthUsecase{cfg: cfg, users: users, clock: clock}
}

// validatorのエラーを400に寄せる
func validationFrom(err error) error {
	switch {
	case errors.Is(err, validator.ErrInvalidEmail):
		return validationError("invalid email")
	case errors.Is(err, validator.ErrWeakPassword):
		return validationError(err.Error())
	default:
		return validationError("name, email and password are required")
	}
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	//入力検証（validatorに寄せる）
	if err := validator.ValidateRegister(in.Name, in.Email, in.Password); err != nil {
		return nil, validationFrom(err)
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, internal(err)
	}

	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        validator.NormalizeEmail(in.Email),
		PasswordHash: string(pwHash),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         model.RoleCustomer,
	}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict(ErrDuplicate, "email already registered")
		}
		return nil, internal(err)
	}

	token, err := u.issueToken(user)
	if err != nil {
		return nil, internal(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := validator.ValidateLogin(email, password); err != nil {
		return nil, validationFrom(err)
	}

	user, err := u.users.FindByEmail(ctx, validator.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) || (err == nil && user == nil) {
		return nil, conflict(ErrUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, internal(err)
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, conflict(ErrUnauthorized, "invalid credentials")
	}

	token, err := u.issueToken(user)
	if err != nil {
		return nil, internal(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (u *AuthUsecase) Profile(ctx context.Context, userID int64) (*model.User, error) {
	if userID <= 0 {
		return nil, ErrUnauthorized
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

// 名前と電話番号だけ変更できる
func (u *AuthUsecase) UpdateProfile(ctx context.Context, userID int64, name, phone string) (*model.User, error) {
	user, err := u.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n := strings.TrimSpace(name); n != "" {
		user.Name = n
	}
	user.Phone = strings.TrimSpace(phone)

	if err := u.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user")
		}
		return nil, internal(err)
	}
	return user, nil
}

// jwt発行
func (u *AuthUsecase) issueToken(user *model.User) (string, error) {
	now := u.clock.Now()
	ttl := u.cfg.JWTTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"tv":    user.TokenVersion,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(u.cfg.JWTSecret))
}
