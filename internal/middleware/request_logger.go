package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront/internal/logging"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	requestIDHeader = "X-Request-Id"
	reqBodyLimit    = 8 * 1024 // 8KB
)

var redactedKeys = map[string]bool{
	"password":      true,
	"authorization": true,
	"token":         true,
	"secret":        true,
}

// パスワードやトークンを伏せる。JSONでなければそのまま
func redactJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	var scrub func(any) any
	scrub = func(x any) any {
		switch v := x.(type) {
		case map[string]any:
			for k, val := range v {
				if redactedKeys[strings.ToLower(k)] {
					v[k] = "***redacted***"
					continue
				}
				v[k] = scrub(val)
			}
			return v
		case []any:
			for i := range v {
				v[i] = scrub(v[i])
			}
			return v
		default:
			return v
		}
	}
	b, err := json.Marshal(scrub(m))
	if err != nil {
		return raw
	}
	return b
}

// 上限+1まで読む。元のbodyは読んだ分と残りをつないで戻す
func peekBody(r *http.Request, n int) (body []byte, truncated bool) {
	var buf bytes.Buffer
	_, _ = io.CopyN(&buf, r.Body, int64(n+1))
	b := buf.Bytes()
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(b), r.Body), r.Body}
	if len(b) > n {
		return b[:n], true
	}
	return b, false
}

// RequestLogger はリクエストごとのloggerをcontextに入れて、終わったら1行出す
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			reqID := req.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, reqID)

			l := base.With(
				"req_id", reqID,
				"method", req.Method,
				"path", c.Path(),
				"remote", c.RealIP(),
			)
			c.SetRequest(req.WithContext(logging.WithCtx(req.Context(), l)))

			var reqBodyLogged string
			if strings.Contains(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) && req.Body != nil {
				body, truncated := peekBody(c.Request(), reqBodyLimit)
				if truncated {
					//途中で切れたJSONは伏せられないので出さない
					reqBodyLogged = "...truncated..."
				} else {
					reqBodyLogged = string(redactJSON(body))
				}
			}

			err := next(c)
			if err != nil {
				// echoのエラーハンドラでステータスを確定させる
				c.Error(err)
			}

			status := c.Response().Status
			attrs := []any{
				"status", status,
				"dur_ms", time.Since(start).Milliseconds(),
				"resp_bytes", c.Response().Size,
			}
			if reqBodyLogged != "" {
				attrs = append(attrs, "req_body", reqBodyLogged)
			}
			if err != nil {
				attrs = append(attrs, "error", err.Error())
			}

			switch {
			case status >= http.StatusInternalServerError:
				l.Error("http_request", attrs...)
			case status >= http.StatusBadRequest:
				l.Warn("http_request", attrs...)
			default:
				l.Info("http_request", attrs...)
			}
			return nil
		}
	}
}
