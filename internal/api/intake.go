package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/gettor/internal/classify"
	"github.com/kalambet/gettor/internal/intake"
	"github.com/kalambet/gettor/internal/locale"
	"github.com/kalambet/gettor/internal/model"
	"github.com/kalambet/gettor/internal/storage"
)

const maxEmailSize = 10 << 20 // 10MB
const maxDMSize = 64 << 10    // 64KB

// AppDeps holds the dependencies of the HTTP handlers built by
// NewAppHandler. Store backs /health, /v1/stats and /v1/locales.
type AppDeps struct {
	Intake  *intake.Intake
	Store   *storage.Store
	Locales *locale.Table
	Token   string
	Logger  *slog.Logger // optional; slog.Default() when nil
}

// LocaleInfo is one row of the GET /v1/locales response.
type LocaleInfo struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	HasLinks bool   `json:"has_links"`
}

// NewAppHandler returns the HTTP surface: message intake and operator
// endpoints behind bearer auth, plus an open /health.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/v1/email", handleEmail(deps))
		r.Post("/v1/dm", handleDM(deps))
		r.Get("/v1/stats", handleStats(deps))
		r.Get("/v1/locales", handleLocales(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleEmail(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxEmailSize)
		defer r.Body.Close()

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "reading message: %v", err)
			return
		}
		if len(raw) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message body is empty")
			return
		}

		res, err := deps.Intake.SubmitEmail(r.Context(), raw)
		if err != nil {
			deps.Logger.Error("email intake failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store request")
			return
		}
		writeResult(w, res)
	}
}

func handleDM(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDMSize)
		defer r.Body.Close()

		var m classify.DirectMessage
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Intake.SubmitDM(r.Context(), m)
		if err != nil {
			deps.Logger.Error("dm intake failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store request")
			return
		}
		writeResult(w, res)
	}
}

// writeResult reports a submission. Only a stored request is 202; every
// other outcome is a normal 200 so mail pipes never bounce.
func writeResult(w http.ResponseWriter, res intake.Result) {
	code := http.StatusOK
	if res.Outcome == intake.Queued {
		code = http.StatusAccepted
	}
	writeJSON(w, code, res)
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, to := q.Get("from"), q.Get("to")
		if d := q.Get("date"); d != "" {
			from, to = d, d
		}
		for _, d := range []string{from, to} {
			if d == "" {
				continue
			}
			if _, err := time.Parse(model.DateLayout, d); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid date %q, want YYYYMMDD", d)
				return
			}
		}

		records, err := deps.Store.ListStats(r.Context(), from, to)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list stats: %v", err)
			return
		}
		if records == nil {
			records = []model.StatsRecord{}
		}

		var total int64
		for _, rec := range records {
			total += rec.Count
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stats": records,
			"total": total,
		})
	}
}

func handleLocales(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := collectLocales(r.Context(), deps.Store, deps.Locales)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list catalog locales: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"locales": infos})
	}
}

// collectLocales joins the locale table with the locales the link catalog
// actually covers. Catalog locales missing from the table are appended.
func collectLocales(ctx context.Context, store *storage.Store, table *locale.Table) ([]LocaleInfo, error) {
	catalog, err := store.CatalogLocales(ctx)
	if err != nil {
		return nil, err
	}
	covered := make(map[string]bool, len(catalog))
	for _, c := range catalog {
		covered[c] = true
	}

	infos := make([]LocaleInfo, 0, len(catalog))
	for _, e := range table.Entries() {
		infos = append(infos, LocaleInfo{Code: e.Code, Name: e.Name, HasLinks: covered[e.Code]})
		delete(covered, e.Code)
	}
	for _, c := range catalog {
		if covered[c] {
			infos = append(infos, LocaleInfo{Code: c, HasLinks: true})
		}
	}
	return infos, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
