package transport

import (
	"encoding/json"
	"net/http"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// respond writes body as JSON with status, mirroring the teacher's
// Respond helper (internal/httpserver).
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError renders err as a JSON error body, mapping its asseterr.Kind
// onto an HTTP status the way the teacher's internal/auth/rbac.go maps
// role failures onto 403 via respondForbidden.
func respondError(w http.ResponseWriter, err error) {
	kind := asseterr.KindOf(err)
	status := statusForKind(kind)
	respond(w, status, map[string]string{
		"error":   kind.String(),
		"message": err.Error(),
	})
}

func statusForKind(kind asseterr.Kind) int {
	switch kind {
	case asseterr.InvalidArgument, asseterr.ParamVerificationFailed:
		return http.StatusBadRequest
	case asseterr.PermissionDenied, asseterr.NotSystemApplication, asseterr.AccessDenied, asseterr.AccessTokenError:
		return http.StatusForbidden
	case asseterr.NotFound:
		return http.StatusNotFound
	case asseterr.Duplicated:
		return http.StatusConflict
	case asseterr.StatusMismatch:
		return http.StatusConflict
	case asseterr.ServiceUnavailable:
		return http.StatusServiceUnavailable
	case asseterr.LimitExceeded:
		return http.StatusTooManyRequests
	case asseterr.Unsupported:
		return http.StatusNotImplemented
	case asseterr.DataCorrupted, asseterr.DatabaseError, asseterr.CryptoError, asseterr.IpcError,
		asseterr.BmsError, asseterr.AccountError, asseterr.FileOperationError, asseterr.GetSystemTimeError,
		asseterr.OutOfMemory:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
