package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"soldi/internal/core"
	"soldi/internal/storage"
)

// entityPayload is the serialized form of the entity fields carried by a
// queued write. Amounts travel as cents so the payload round-trips without
// decimal parsing.
type entityPayload struct {
	ID          string `json:"id"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Day         int    `json:"day"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Kind        string `json:"kind"`
	Primary     string `json:"primary"`
	Secondary   string `json:"secondary"`
}

func encodePayload(tx core.Transaction) ([]byte, error) {
	p := entityPayload{
		ID:          tx.ID,
		Description: tx.Description,
		AmountCents: tx.Amount.Cents(),
		Kind:        string(tx.Kind),
		Primary:     tx.Primary,
		Secondary:   tx.Secondary,
	}
	if !tx.Date.IsZero() {
		p.Year, p.Month, p.Day = tx.Date.Year(), tx.Date.Month(), tx.Date.Day()
	}
	return json.Marshal(p)
}

func decodePayload(data []byte) (core.Transaction, error) {
	var p entityPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return core.Transaction{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	tx := core.Transaction{
		ID:          p.ID,
		Description: p.Description,
		Amount:      core.MoneyFromCents(p.AmountCents),
		Kind:        core.TransactionKind(p.Kind),
		Primary:     p.Primary,
		Secondary:   p.Secondary,
	}
	if p.Year != 0 {
		tx.Date = core.NewDate(p.Year, p.Month, p.Day)
	}
	return tx, nil
}

// newRecord builds a pending QueuedWrite for a validated request.
func newRecord(id, batchID string, req core.WriteRequest, now time.Time) (storage.QueuedWrite, error) {
	payload, err := encodePayload(req.Entity)
	if err != nil {
		return storage.QueuedWrite{}, fmt.Errorf("encode payload: %w", err)
	}
	return storage.QueuedWrite{
		ID:         id,
		BatchID:    batchID,
		Op:         string(req.Op),
		Collection: req.Collection,
		Payload:    payload,
		EnqueuedAt: now.UTC(),
		Status:     storage.StatusPending,
	}, nil
}

// requestFromRecord rebuilds the write request a record was enqueued for.
func requestFromRecord(rec storage.QueuedWrite) (core.WriteRequest, error) {
	tx, err := decodePayload(rec.Payload)
	if err != nil {
		return core.WriteRequest{}, err
	}
	return core.WriteRequest{
		Op:         core.WriteOp(rec.Op),
		Collection: rec.Collection,
		Entity:     tx,
	}, nil
}
