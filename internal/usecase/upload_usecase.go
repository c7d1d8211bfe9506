package usecase

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type UploadResult struct {
	Message  string `json:"message"`
	ImageURL string `json:"image_url"`
	Filename string `json:"filename"`
}

type UploadUsecase struct {
	storage  ImageStorage
	maxBytes int64
	ids      IDGenerator
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

func NewUploadUsecase(storage ImageStorage, maxBytes int64, ids IDGenerator) *UploadUsecase {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	if ids == nil {
		ids = uuidGenerator{}
	}
	return &UploadUsecase{storage: storage, maxBytes: maxBytes, ids: ids}
}

func (u *UploadUsecase) MaxBytes() int64 { return u.maxBytes }

// 画像だけ受け付ける。種類は先頭512バイトから判定
func (u *UploadUsecase) SaveImage(ctx context.Context, originalName string, size int64, r io.Reader) (UploadResult, error) {
	if size > u.maxBytes {
		return UploadResult{}, validationError("file too large")
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return UploadResult{}, internal(err)
	}
	if len(head) == 0 {
		return UploadResult{}, validationError("empty file")
	}
	ctype := http.DetectContentType(head)
	if !strings.HasPrefix(ctype, "image/") {
		return UploadResult{}, validationError("only image files are allowed")
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" || len(ext) > 6 {
		ext = extForContentType(ctype)
	}
	name := "product-" + u.ids.NewID() + ext

	// sizeが申告と違っても上限で切る
	limited := &io.LimitedReader{R: br, N: u.maxBytes + 1}
	saved, err := u.storage.Save(ctx, name, limited)
	if err != nil {
		return UploadResult{}, internal(err)
	}
	if limited.N <= 0 {
		_ = u.storage.Delete(context.WithoutCancel(ctx), saved)
		return UploadResult{}, validationError("file too large")
	}

	return UploadResult{
		Message:  "image uploaded",
		ImageURL: "/uploads/" + saved,
		Filename: saved,
	}, nil
}

func extForContentType(ctype string) string {
	switch ctype {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
