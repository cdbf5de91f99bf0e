package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DjordjeVuckovic/news-ingest/internal/events"
)

// EventEmitter is the best-effort operational event sink. A nil emitter
// disables event emission.
type EventEmitter interface {
	Emit(ev events.Event)
}

func GlobalErrorHandler(emitter EventEmitter) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var ve *ValidationError
		if errors.As(err, &ve) {
			_ = c.JSON(http.StatusBadRequest, map[string]string{"error": ve.Message, "title": "validation error"})
			return
		}

		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			_ = c.JSON(http.StatusNotFound, map[string]string{"error": nfe.Message})
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := fmt.Sprintf("%v", he.Message)
			_ = c.JSON(he.Code, map[string]string{"error": msg})
			return
		}

		slog.Error("Unhandled error", "error", err)
		if emitter != nil {
			emitter.Emit(events.Event{
				Severity:   events.SeverityCritical,
				Code:       events.CodeInternalError,
				Title:      "unhandled server error",
				Message:    err.Error(),
				URL:        c.Request().URL.Path,
				HTTPStatus: http.StatusInternalServerError,
			})
		}
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
