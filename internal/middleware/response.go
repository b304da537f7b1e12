package middleware

import (
	"net/http"

	apperrors "github.com/openclaw/session-gateway/internal/errors"
	"github.com/openclaw/session-gateway/internal/httputil"
)

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	httputil.WriteError(w, err)
}
