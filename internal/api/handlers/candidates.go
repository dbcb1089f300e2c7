// candidates.go — GET/POST /api/1.0/randomarchive.
// Выбор случайного непроверенного архива, загруженного в окне
// [now - (age + safety_margin), now - safety_margin] дней.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/johanherman/snpseq-archive-db/internal/api/errors"
)

// candidateResponse — выбранный архив в ответе API.
type candidateResponse struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Path        string    `json:"path"`
	Host        string    `json:"host"`
	Archive     string    `json:"archive"`
}

// RandomArchive — GET/POST /api/1.0/randomarchive.
// Параметры age и safety_margin принимаются из query string или JSON-тела,
// как числа или как строки. Ответ 204 — в окне нет кандидатов.
func (h *APIHandler) RandomArchive(w http.ResponseWriter, r *http.Request) {
	params, err := windowParams(w, r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	age, err := params.int("age")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	margin, err := params.int("safety_margin")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	c, err := h.picker.PickUnverifiedCandidate(r.Context(), age, margin)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "unverified",
		"archive": candidateResponse{
			Timestamp:   c.UploadedAt.UTC(),
			Description: c.Description,
			Path:        c.Path,
			Host:        c.Host,
			Archive:     c.Name(),
		},
	})
}

// rawParams — значения параметров окна до преобразования в int.
type rawParams map[string]any

// windowParams собирает параметры из JSON-тела и query string.
// Query string имеет приоритет над телом.
func windowParams(w http.ResponseWriter, r *http.Request) (rawParams, error) {
	params := rawParams{}

	if r.Body != nil && r.ContentLength != 0 {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения тела запроса: %w", err)
		}
		if len(bytes.TrimSpace(body)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			if err := dec.Decode(&params); err != nil {
				return nil, errors.New("Некорректный JSON: " + err.Error())
			}
			// Тело "null" обнуляет map
			if params == nil {
				params = rawParams{}
			}
		}
	}

	query := r.URL.Query()
	for _, name := range []string{"age", "safety_margin"} {
		if query.Has(name) {
			params[name] = query.Get(name)
		}
	}
	return params, nil
}

// int возвращает целочисленный параметр name.
func (p rawParams) int(name string) (int, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("Expecting '%s' in the JSON body or query string", name)
	}

	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return 0, fmt.Errorf("параметр '%s' должен быть целым числом", name)
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("параметр '%s' должен быть целым числом, получено %q", name, s)
	}
	return n, nil
}
