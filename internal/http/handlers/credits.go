package handlers

import (
	"net/http"
	"strconv"
	"time"

	"illustrator/internal/domain"
)

type transactionResponse struct {
	ID           string    `json:"id"`
	Amount       int       `json:"amount"`
	Pool         string    `json:"pool"`
	Reason       string    `json:"reason"`
	ReferenceID  string    `json:"referenceId,omitempty"`
	BalanceAfter int       `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a *App) CreditBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	bal, err := a.Credits.Balance(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"free":          bal.Free,
		"paid":          bal.Paid,
		"total":         bal.Total,
		"authenticated": owner.Authenticated,
	})
}

func (a *App) CreditHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	if !owner.Authenticated {
		a.error(w, http.StatusUnauthorized, domain.CodeUnauthorized, "history requires an account")
		return
	}
	limit, err1 := queryInt(r, "limit")
	offset, err2 := queryInt(r, "offset")
	if err1 != nil || err2 != nil {
		a.error(w, http.StatusBadRequest, domain.CodeInvalidInput, "limit and offset must be integers")
		return
	}

	txs, err := a.Credits.History(r.Context(), owner.ID, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, transactionResponse{
			ID:           tx.ID,
			Amount:       tx.Amount,
			Pool:         string(tx.Pool),
			Reason:       tx.Reason,
			ReferenceID:  tx.ReferenceID,
			BalanceAfter: tx.BalanceAfter,
			CreatedAt:    tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
