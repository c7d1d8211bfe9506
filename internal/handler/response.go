package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// usecaseのHTTPErrorはそのまま返す。それ以外は500でメッセージを隠す
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	he, ok := usecase.AsHTTPError(err)
	if !ok || he.Status >= http.StatusInternalServerError {
		logging.FromCtx(c.Request().Context()).Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"err", err,
		)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: usecase.ErrInternal.Code})
	}
	return c.JSON(he.Status, ErrorResponse{Error: he.Message, Code: he.Code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: usecase.ErrValidation.Code})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.ErrUnauthorized.Code})
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す
func getUserIDFromContext(c echo.Context) (int64, bool) {
	id, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

func getActor(c echo.Context) (usecase.Actor, bool) {
	id, ok := getUserIDFromContext(c)
	if !ok {
		return usecase.Actor{}, false
	}
	role, _ := c.Get(middleware.CtxUserRoleKey).(string)
	return usecase.Actor{UserID: id, Role: model.Role(role)}, true
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// 空なら0（usecase側でデフォルトにする）
func queryInt(c echo.Context, name string) (int, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func pageParams(c echo.Context) (int, int, bool) {
	page, ok := queryInt(c, "page")
	if !ok {
		return 0, 0, false
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return 0, 0, false
	}
	return page, limit, true
}
