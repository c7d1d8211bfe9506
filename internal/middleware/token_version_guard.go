package middleware

import (
	"errors"
	"net/http"

	"storefront/internal/logging"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

// JWTのtvとDBのtoken_versionの一致するか確認。
// ユーザーが消えていれば401、DB障害は500で返す（ログアウト扱いにしない）
func TokenVersionGuard(userRepo repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := c.Get(CtxUserIDKey).(int64)
			if !ok || userID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			tv, ok := c.Get(CtxTokenVersionKey).(int)
			if !ok || tv < 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			ctx := c.Request().Context()
			user, err := userRepo.FindByID(ctx, userID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			case err != nil:
				logging.FromCtx(ctx).Error("token version lookup failed", "user_id", userID, "err", err)
				return c.JSON(http.StatusInternalServerError, internalJSON())
			case user == nil:
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//token_version が一致しなければ強制ログアウト扱い（401）
			if user.TokenVersion != tv {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			return next(c)
		}
	}
}
