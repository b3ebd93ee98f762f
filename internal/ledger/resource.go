package ledger

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/rbac"
)

// Resource serves CRUD for one catalog collection. Key names the JSON
// envelope ("center" gives {"center": ...}, {"centerId": ...}) and Title
// is used in messages and the "updated<Title>" key.
type Resource[T any, P Doc[T]] struct {
	Key      string
	Title    string
	DataType rbac.DataType

	repo Repository[T]
	rs   *httpx.Responder
}

func NewResource[T any, P Doc[T]](key, title string, dataType rbac.DataType, repo Repository[T], rs *httpx.Responder) *Resource[T, P] {
	return &Resource[T, P]{Key: key, Title: title, DataType: dataType, repo: repo, rs: rs}
}

// HandleCreate stores a new document. Any client-supplied id is ignored.
func (h *Resource[T, P]) HandleCreate(w http.ResponseWriter, r *http.Request) {
	doc := new(T)
	if err := httpx.Decode(w, r, doc); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	P(doc).SetDocID("")
	if err := prepare(doc); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if err := h.repo.Insert(r.Context(), doc); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{h.Key: doc})
}

// HandleList returns the documents visible to the caller.
func (h *Resource[T, P]) HandleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.repo.Find(r.Context(), nil)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		h.Key: rbac.Filter(h.DataType, docs, rbac.GetPrincipal(r.Context())),
	})
}

func (h *Resource[T, P]) HandleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{h.Key: doc})
}

// HandleUpdate merges the top-level fields of the body into the stored
// document.
func (h *Resource[T, P]) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch map[string]json.RawMessage
	if err := httpx.Decode(w, r, &patch); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	doc, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}
	updated, err := applyPatch[T, P](doc, patch)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if err := h.repo.UpdateOne(r.Context(), updated); err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		h.Key + "Id":        id,
		"updated" + h.Title: updated,
	})
}

func (h *Resource[T, P]) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := h.repo.DeleteOne(r.Context(), id)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		h.Key + "Id":  id,
		"deleteInfos": deleteInfo(n),
	})
}

// HandleDeleteAll empties the collection.
func (h *Resource[T, P]) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.DeleteMany(r.Context(), nil)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleteInfos": deleteInfo(n)})
}

func (h *Resource[T, P]) mapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return httpx.NotFound(h.Title + " not found")
	}
	return err
}

func deleteInfo(n int64) map[string]int64 {
	return map[string]int64{"deletedCount": n}
}

// prepare normalises and validates a document before it is written.
func prepare(doc any) error {
	if n, ok := doc.(normalizer); ok {
		n.Normalize()
	}
	return httpx.Validate(doc)
}

// applyPatch overlays patch on doc's JSON form and decodes the result into
// a fresh document with the same id. The "_id" key is never patched.
func applyPatch[T any, P Doc[T]](doc *T, patch map[string]json.RawMessage) (*T, error) {
	id := P(doc).DocID()

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range patch {
		if k == "_id" {
			continue
		}
		merged[k] = v
	}

	out := new(T)
	b, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, httpx.Invalid("invalid request body", nil)
	}
	P(out).SetDocID(id)
	if err := prepare(out); err != nil {
		return nil, err
	}
	return out, nil
}
