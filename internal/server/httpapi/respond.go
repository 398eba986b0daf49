package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = common.BadRequest("Invalid request body")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind common.Kind) int {
	switch kind {
	case common.KindBadRequest:
		return http.StatusBadRequest
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": msg}. Internal causes are logged and
// replaced with a generic message.
func writeError(ctx context.Context, w http.ResponseWriter, logger logging.Logger, err error) {
	kind := common.KindOf(err)
	if kind == common.KindInternal {
		logger.Error(ctx, "request failed", "error", err)
	}
	writeJSON(w, statusFor(kind), errorBody{Error: common.PublicMessage(err)})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}
