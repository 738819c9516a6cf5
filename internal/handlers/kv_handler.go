package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/interfaces"
)

// KVHandler manages operator settings (API keys, overrides) in the KV
// bucket. Values are masked in list responses since they are mostly secrets.
type KVHandler struct {
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger
}

// NewKVHandler creates a new KV handler.
func NewKVHandler(kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		kvStorage: kvStorage,
		logger:    logger,
	}
}

// ListKVHandler handles GET /api/kv - lists all settings with masked values.
func (h *KVHandler) ListKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	all, err := h.kvStorage.GetAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		WriteError(w, http.StatusInternalServerError, "Failed to list key/value pairs")
		return
	}

	masked := make(map[string]string, len(all))
	for k, v := range all {
		masked[k] = maskValue(v)
	}

	WriteJSON(w, http.StatusOK, masked)
}

// SetKVHandler handles PUT /api/kv/{key} - sets one setting.
func (h *KVHandler) SetKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.kvStorage.Set(r.Context(), key, req.Value, req.Description); err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to set key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to store value")
		return
	}

	h.logger.Info().Str("key", key).Msg("Setting stored")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "key": key})
}

// GetKVHandler handles GET /api/kv/{key} - retrieves one setting unmasked.
func (h *KVHandler) GetKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	value, err := h.kvStorage.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to get key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to read value")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (h *KVHandler) keyFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	encoded := strings.TrimPrefix(r.URL.Path, "/api/kv/")
	key, err := url.QueryUnescape(encoded)
	if err != nil || strings.TrimSpace(key) == "" {
		WriteError(w, http.StatusBadRequest, "Missing or invalid key")
		return "", false
	}
	return key, true
}

func maskValue(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + strings.Repeat("*", 8) + value[len(value)-2:]
}
