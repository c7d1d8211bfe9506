package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type UploadHandler struct {
	uc *usecase.UploadUsecase
}

func NewUploadHandler(uc *usecase.UploadUsecase) *UploadHandler {
	return &UploadHandler{uc: uc}
}

// gは管理者グループ
func (h *UploadHandler) RegisterRoutes(g *echo.Group) {
	// multipartのヘッダ分だけ余裕を持たせる
	limit := h.uc.MaxBytes() + 1<<20
	g.POST("", h.upload, echomw.BodyLimit(formatBytes(limit)))
}

func (h *UploadHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "cannot read file")
	}
	defer f.Close()

	out, err := h.uc.SaveImage(c.Request().Context(), fh.Filename, fh.Size, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// echoのBodyLimitは"6M"のような文字列
func formatBytes(n int64) string {
	return strconv.FormatInt(n/1024, 10) + "K"
}
