package transport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/pipeline"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// Handler wires pipeline.Pipeline onto the HTTP routes of spec.md §6.1,
// standing in for the real FFI/parcel surface (out of scope per §1).
type Handler struct {
	Pipeline *pipeline.Pipeline
}

// NewRouter builds the chi.Mux exposing the six public operations plus
// QuerySyncResult, grounded on the teacher's internal/httpserver server
// construction (middleware stack, Route grouping).
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/v1/assets", func(r chi.Router) {
		r.Post("/", h.handleAdd)
		r.Delete("/", h.handleRemove)
		r.Patch("/", h.handleUpdate)
		r.Post("/prequery", h.handlePreQuery)
		r.Post("/query", h.handleQuery)
		r.Post("/postquery", h.handlePostQuery)
	})
	r.Get("/v1/sync-result", h.handleQuerySyncResult)

	return r
}

// callerFromHeaders builds an identity.IPCCaller from request headers,
// standing in for the real IPC context the kernel would supply. Exactly
// one of X-Hap-App-Id or X-Native-Process must be set.
func callerFromHeaders(r *http.Request) (identity.IPCCaller, error) {
	userID, err := strconv.ParseUint(r.Header.Get("X-User-Id"), 10, 32)
	if err != nil {
		return identity.IPCCaller{}, err
	}
	caller := identity.IPCCaller{UserID: uint32(userID)}

	if appID := r.Header.Get("X-Hap-App-Id"); appID != "" {
		appIndex, _ := strconv.ParseUint(r.Header.Get("X-Hap-App-Index"), 10, 32)
		hap := &identity.HapInfo{AppID: appID, AppIndex: uint32(appIndex)}
		if dev := r.Header.Get("X-Hap-Developer-Id"); dev != "" {
			if grp := r.Header.Get("X-Hap-Group-Id"); grp != "" {
				hap.DeveloperID = &dev
				hap.GroupID = &grp
			}
		}
		caller.Hap = hap
		return caller, nil
	}

	if proc := r.Header.Get("X-Native-Process"); proc != "" {
		uid, _ := strconv.ParseUint(r.Header.Get("X-Native-Uid"), 10, 32)
		caller.Native = &identity.NativeInfo{ProcessName: proc, UID: uint32(uid)}
		return caller, nil
	}

	return identity.IPCCaller{}, errNoCallerHeaders
}

var errNoCallerHeaders = errors.New("neither X-Hap-App-Id nor X-Native-Process header present")

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func readAsset(r io.Reader) (tag.Asset, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeAsset(body)
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromHeaders(r)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": "missing or malformed caller headers"})
		return
	}
	attrs, err := readAsset(r.Body)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	if err := h.Pipeline.Add(r.Context(), caller, attrs); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromHeaders(r)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": "missing or malformed caller headers"})
		return
	}
	query, err := readAsset(r.Body)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	if err := h.Pipeline.Remove(r.Context(), caller, query); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// updateBody carries Update's two attribute maps, since a single wire
// array (§6.2) only models one map at a time.
type updateBody struct {
	Query json.RawMessage `json:"query"`
	Patch json.RawMessage `json:"patch"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromHeaders(r)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": "missing or malformed caller headers"})
		return
	}
	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	query, err := DecodeAsset(body.Query)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	patch, err := DecodeAsset(body.Patch)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	if err := h.Pipeline.Update(r.Context(), caller, query, patch); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePreQuery(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromHeaders(r)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": "missing or malformed caller headers"})
		return
	}
	query, err := readAsset(r.Body)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	challenge, token, err := h.Pipeline.PreQuery(r.Context(), caller, query)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"challenge": encodeBase64(challenge), "token": encodeBase64(token)})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromHeaders(r)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": "missing or malformed caller headers"})
		return
	}
	query, err := readAsset(r.Body)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	results, err := h.Pipeline.Query(r.Context(), caller, query)
	if err != nil {
		respondError(w, err)
		return
	}

	encoded := make([]json.RawMessage, 0, len(results))
	for _, res := range results {
		raw, err := EncodeAsset(res)
		if err != nil {
			respondError(w, err)
			return
		}
		encoded = append(encoded, raw)
	}
	respond(w, http.StatusOK, encoded)
}

func (h *Handler) handlePostQuery(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromHeaders(r)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": "missing or malformed caller headers"})
		return
	}
	req, err := readAsset(r.Body)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": err.Error()})
		return
	}
	if err := h.Pipeline.PostQuery(r.Context(), caller, req); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleQuerySyncResult(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromHeaders(r)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "InvalidArgument", "message": "missing or malformed caller headers"})
		return
	}
	result, err := h.Pipeline.QuerySyncResult(r.Context(), caller)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}
