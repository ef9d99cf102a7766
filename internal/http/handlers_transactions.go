package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"soldi/internal/core"
	"soldi/internal/remote"
)

const transactionsCollection = "transactions"

type transactionRequest struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Day         int    `json:"day"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Primary     string `json:"primary"`
	Secondary   string `json:"secondary"`
}

type transactionResponse struct {
	ID          string `json:"id"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Day         int    `json:"day"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Primary     string `json:"primary"`
	Secondary   string `json:"secondary"`
}

type writeResponse struct {
	Mode     string `json:"mode"`
	RecordID string `json:"record_id,omitempty"`
	BatchID  string `json:"batch_id,omitempty"`
	Entity   any    `json:"entity,omitempty"`
}

func (req transactionRequest) toEntity(id string) (core.Transaction, error) {
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(req.Year, req.Month, req.Day)
	if err != nil {
		return core.Transaction{}, err
	}
	kind := core.TransactionKind(req.Kind)
	if req.Kind == "" {
		kind = core.Expense
	}
	return core.Transaction{
		ID:          id,
		Date:        date,
		Description: req.Description,
		Amount:      amount,
		Kind:        kind,
		Primary:     req.Primary,
		Secondary:   req.Secondary,
	}, nil
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		Year:        tx.Date.Year(),
		Month:       tx.Date.Month(),
		Day:         tx.Date.Day(),
		Description: tx.Description,
		Amount:      tx.Amount.String(),
		Kind:        string(tx.Kind),
		Primary:     tx.Primary,
		Secondary:   tx.Secondary,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	items := s.local.List(transactionsCollection)
	resp := make([]transactionResponse, 0, len(items))
	for _, tx := range items {
		resp = append(resp, toTransactionResponse(tx))
	}
	NewJSONResponse().Body(map[string]any{"transactions": resp}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		NewJSONResponse().Error(http.StatusBadRequest, "invalid request body").Write(w)
		return
	}

	entity, err := req.toEntity(uuid.NewString())
	if err != nil {
		NewJSONResponse().Error(http.StatusUnprocessableEntity, err.Error()).Write(w)
		return
	}

	s.routeWrite(w, r, core.WriteRequest{
		Op:         core.OpCreate,
		Collection: transactionsCollection,
		Entity:     entity,
	}, http.StatusCreated)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.local.Get(transactionsCollection, id); !ok {
		NewJSONResponse().Error(http.StatusNotFound, "transaction not found").Write(w)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		NewJSONResponse().Error(http.StatusBadRequest, "invalid request body").Write(w)
		return
	}

	entity, err := req.toEntity(id)
	if err != nil {
		NewJSONResponse().Error(http.StatusUnprocessableEntity, err.Error()).Write(w)
		return
	}

	s.routeWrite(w, r, core.WriteRequest{
		Op:         core.OpUpdate,
		Collection: transactionsCollection,
		Entity:     entity,
	}, http.StatusOK)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.local.Get(transactionsCollection, id); !ok {
		NewJSONResponse().Error(http.StatusNotFound, "transaction not found").Write(w)
		return
	}

	s.routeWrite(w, r, core.WriteRequest{
		Op:         core.OpDelete,
		Collection: transactionsCollection,
		Entity:     core.Transaction{ID: id},
	}, http.StatusOK)
}

// routeWrite sends the request through the write router and renders where it
// ended up: confirmed directly, durably queued, or rejected.
func (s *Server) routeWrite(w http.ResponseWriter, r *http.Request, req core.WriteRequest, okStatus int) {
	res, err := s.router.Write(r.Context(), req)
	if err != nil {
		slog.WarnContext(r.Context(), "Write rejected",
			"op", string(req.Op),
			"entity_id", req.Entity.ID,
			"error", err)
		status := http.StatusBadGateway
		if remote.IsPermanent(err) {
			status = http.StatusUnprocessableEntity
		}
		NewJSONResponse().Error(status, err.Error()).Write(w)
		return
	}

	resp := writeResponse{
		Mode:     string(res.Mode),
		RecordID: res.RecordID,
		BatchID:  res.BatchID,
	}
	if req.Op != core.OpDelete {
		resp.Entity = toTransactionResponse(req.Entity)
	}
	NewJSONResponse().Status(okStatus).Body(resp).Write(w)
}
