package catalog

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"StoreFront/internal/images"
	"StoreFront/pkg/kit"
)

type Server struct {
	Store  Store
	Images images.Store
	Log    *zap.Logger
}

// maxUploadBody caps the whole multipart request: the 2 MiB image plus
// headroom for the form fields and part boundaries.
const maxUploadBody = images.MaxBytes + 1<<20

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.List(r.Context())
	if err != nil {
		if s.Log != nil {
			s.Log.Error("list items failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	it, found, err := s.Store.Get(r.Context(), id)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("get item failed", zap.Error(err), zap.Int64("id", id))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "item not found", map[string]any{"id": id})
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad multipart form", nil)
		return
	}

	name := r.FormValue("name")
	price, err := decimal.NewFromString(r.FormValue("price"))
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "price must be a number", nil)
		return
	}
	if err := validateFields(name, price); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	// Validation happens before the image touches disk so a rejected
	// create leaves neither a record nor an orphaned file behind.
	file, header, err := r.FormFile("image")
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "image file required", nil)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "unreadable image upload", nil)
		return
	}

	ref, err := s.Images.Save(r.Context(), header.Header.Get("Content-Type"), header.Filename, data)
	if err != nil {
		if errors.Is(err, images.ErrTooLarge) || errors.Is(err, images.ErrBadType) {
			kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if s.Log != nil {
			s.Log.Error("store image failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	it, err := s.Store.Create(r.Context(), Fields{Name: name, Price: price, ImageRef: ref})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	body, err := decodeItem(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	it, err := s.Store.Replace(r.Context(), id, body)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	it, found, err := s.Store.Delete(r.Context(), id)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("delete item failed", zap.Error(err), zap.Int64("id", id))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "item not found", map[string]any{"id": id})
		return
	}

	// 204 suppresses the payload on the wire; the deleted item is still
	// handed to WriteJSON to keep the response shape in one place.
	kit.WriteJSON(w, http.StatusNoContent, it)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "item not found", nil)
	case errors.Is(err, ErrIDMismatch):
		kit.WriteError(w, r, http.StatusBadRequest, "id does not match path", nil)
	case errors.Is(err, ErrInvalid):
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
	default:
		if s.Log != nil {
			s.Log.Error("store error", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		kit.WriteError(w, r, http.StatusNotFound, "item not found", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

const maxReplaceBody = 1 << 20

func decodeItem(w http.ResponseWriter, r *http.Request) (Item, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReplaceBody)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var it Item
	if err := dec.Decode(&it); err != nil {
		return Item{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Item{}, errors.New("extra data after json object")
	}
	return it, nil
}
