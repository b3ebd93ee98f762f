package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/rbac"
)

// TransactionHandler serves /transaction and /transactions. Every write
// checks the caller's center and service scope for the referenced ids.
type TransactionHandler struct {
	books Books
	rs    *httpx.Responder
}

func NewTransactionHandler(books Books, rs *httpx.Responder) *TransactionHandler {
	return &TransactionHandler{books: books, rs: rs}
}

func (h *TransactionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p := rbac.GetPrincipal(r.Context())

	var t Transaction
	if err := httpx.Decode(w, r, &t); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	t.ID = ""
	if err := validateTransaction(&t); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if err := checkScope(p, &t); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	err := h.books.Atomic(r.Context(), func(ctx context.Context, tx Books) error {
		if err := newResolver(tx, p).apply(ctx, &t, true, ""); err != nil {
			return err
		}
		if t.Index == 0 {
			last, err := tx.Transactions().MaxInt(ctx, "index")
			if err != nil {
				return err
			}
			t.Index = last + 1
		}
		return tx.Transactions().Insert(ctx, &t)
	})
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transaction": t})
}

// HandleList returns the transactions inside the caller's scope.
func (h *TransactionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.books.Transactions().Find(r.Context(), nil)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": rbac.Filter(rbac.DataTransactions, list, rbac.GetPrincipal(r.Context())),
	})
}

func (h *TransactionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.load(r)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transaction": t})
}

// HandleUpdate merges the body into the stored transaction. The caller
// must be able to see both the stored and the resulting references.
func (h *TransactionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p := rbac.GetPrincipal(r.Context())

	var patch map[string]json.RawMessage
	if err := httpx.Decode(w, r, &patch); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	prev, err := h.load(r)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	updated, err := applyPatch[Transaction](prev, patch)
	if err == nil {
		err = validateTransaction(updated)
	}
	if err == nil {
		err = checkScope(p, updated)
	}
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	err = h.books.Atomic(r.Context(), func(ctx context.Context, tx Books) error {
		if err := newResolver(tx, p).apply(ctx, updated, false, ""); err != nil {
			return err
		}
		return tx.Transactions().UpdateOne(ctx, updated)
	})
	if err != nil {
		h.rs.Error(w, r, mapNotFound(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactionId":      updated.ID,
		"updatedTransaction": updated,
	})
}

func (h *TransactionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	t, err := h.load(r)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	n, err := h.books.Transactions().DeleteOne(r.Context(), t.ID)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactionId": t.ID,
		"deleteInfos":   deleteInfo(n),
	})
}

// HandleLastIndex returns the highest transaction index, 0 when empty.
func (h *TransactionHandler) HandleLastIndex(w http.ResponseWriter, r *http.Request) {
	n, err := h.books.Transactions().MaxInt(r.Context(), "index")
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"lastIndex": n})
}

type batchEntry struct {
	Transaction
	OriginalCenterName  string `json:"originalCenterName"`
	OriginalServiceName string `json:"originalServiceName"`
	OriginalClientName  string `json:"originalClientName"`
}

type batchRequest struct {
	Transactions []batchEntry `json:"transactions" validate:"required,min=1"`
}

// HandleBatch imports many transactions at once. Center and service may
// be given by name, clients by name are created on demand. Every entry is
// scope checked and the batch is stored all-or-nothing.
func (h *TransactionHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	p := rbac.GetPrincipal(r.Context())

	var req batchRequest
	if err := httpx.DecodeLimit(w, r, &req, 8*httpx.MaxBodyBytes); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	docs := make([]*Transaction, 0, len(req.Transactions))
	err := h.books.Atomic(r.Context(), func(ctx context.Context, tx Books) error {
		rv := newResolver(tx, p)
		for i := range req.Transactions {
			t, err := prepareEntry(ctx, rv, &req.Transactions[i], i)
			if err != nil {
				return err
			}
			docs = append(docs, t)
		}

		for i, t := range docs {
			if err := rv.apply(ctx, t, true, fmt.Sprintf("transactions[%d].", i)); err != nil {
				return err
			}
		}

		last, err := tx.Transactions().MaxInt(ctx, "index")
		if err != nil {
			return err
		}
		for _, t := range docs {
			if t.Index == 0 {
				last++
				t.Index = last
			}
		}
		return tx.Transactions().InsertMany(ctx, docs)
	})
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"transactions":  docs,
		"insertedCount": len(docs),
	})
}

// prepareEntry maps the import-only fields of e onto its transaction,
// validates it and checks scope.
func prepareEntry(ctx context.Context, rv *resolver, e *batchEntry, i int) (*Transaction, error) {
	t := e.Transaction
	t.ID = ""
	prefix := fmt.Sprintf("transactions[%d].", i)

	if t.Center == "" && e.OriginalCenterName != "" {
		id, ok, err := rv.centerIDByName(ctx, e.OriginalCenterName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, httpx.Invalid("Unknown center", map[string]string{prefix + "center": "not_found"})
		}
		t.Center = id
	}
	if t.Service == "" && e.OriginalServiceName != "" {
		id, ok, err := rv.serviceIDByName(ctx, e.OriginalServiceName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, httpx.Invalid("Unknown service", map[string]string{prefix + "service": "not_found"})
		}
		t.Service = id
	}
	if t.Client == "" && strings.TrimSpace(e.OriginalClientName) != "" {
		t.Client = strings.TrimSpace(e.OriginalClientName)
	}

	if err := validateTransaction(&t); err != nil {
		var he *httpx.Error
		if errors.As(err, &he) {
			return nil, prefixed(he, prefix)
		}
		return nil, err
	}
	if err := checkScope(rv.actor, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func prefixed(e *httpx.Error, prefix string) *httpx.Error {
	errs, ok := e.Fields["errors"].(map[string]string)
	if !ok {
		return e
	}
	out := make(map[string]string, len(errs))
	for k, v := range errs {
		out[prefix+k] = v
	}
	return httpx.Invalid(e.Message, out)
}

// load fetches the transaction named by the path and checks the caller
// may see it.
func (h *TransactionHandler) load(r *http.Request) (*Transaction, error) {
	t, err := h.books.Transactions().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, mapNotFound(err)
	}
	if err := checkScope(rbac.GetPrincipal(r.Context()), t); err != nil {
		return nil, err
	}
	return t, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return httpx.NotFound("Transaction not found")
	}
	return err
}
