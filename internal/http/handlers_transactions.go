package http

import (
	"net/http"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/log"

	"github.com/shopspring/decimal"
)

// transactionRequest is the create body. With a category the amount is a
// magnitude and the category type decides the sign.
type transactionRequest struct {
	AccountID   string      `json:"accountId"`
	CategoryID  string      `json:"categoryId"`
	Amount      amountInput `json:"amount"`
	Date        core.Date   `json:"date"`
	Description string      `json:"description"`
	Notes       string      `json:"notes"`
}

type transactionPatchRequest struct {
	AccountID   *string      `json:"accountId"`
	CategoryID  *string      `json:"categoryId"`
	Amount      *amountInput `json:"amount"`
	Date        *core.Date   `json:"date"`
	Description *string      `json:"description"`
	Notes       *string      `json:"notes"`
}

type transferRequest struct {
	FromAccountID string      `json:"fromAccountId"`
	ToAccountID   string      `json:"toAccountId"`
	Amount        amountInput `json:"amount"`
	Date          core.Date   `json:"date"`
	Description   string      `json:"description"`
	Notes         string      `json:"notes"`
}

type transferPatchRequest struct {
	FromAccountID *string      `json:"fromAccountId"`
	ToAccountID   *string      `json:"toAccountId"`
	Amount        *amountInput `json:"amount"`
	Date          *core.Date   `json:"date"`
	Description   *string      `json:"description"`
	Notes         *string      `json:"notes"`
}

// transactionList is the listing envelope with the window actually applied.
type transactionList struct {
	From         core.Date          `json:"dateFrom"`
	To           core.Date          `json:"dateTo"`
	Transactions []core.Transaction `json:"transactions"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.Amount.signed()
	if err != nil {
		writeError(w, r, err)
		return
	}

	sc := scope(r)
	t, err := s.ledger.CreateTransaction(r.Context(), sc, ledger.NewTransaction{
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Amount:      amount,
		Date:        req.Date,
		Description: sanitizeInput(req.Description),
		Notes:       sanitizeInput(req.Notes),
	})
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to create transaction", err, log.ComponentHTTP, log.OpCreate,
			log.NewFields().WithScope(sc).WithComponent(log.ComponentLedger))
		writeError(w, r, err)
		return
	}
	s.logger.LogTransaction(r.Context(), log.OpCreate, sc, t)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := transactionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, applied, err := s.ledger.ListTransactions(r.Context(), scope(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactionList{From: applied.From, To: applied.To, Transactions: list})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, err := transactionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), scope(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if summary.ByCategory == nil {
		summary.ByCategory = []core.CategoryAmount{}
	}
	writeJSON(w, http.StatusOK, summary)
}

// transactionQuery reads dateFrom (inclusive), dateTo (exclusive), accountId
// and categoryIds.
func transactionQuery(r *http.Request) (ledger.Query, error) {
	values := r.URL.Query()
	from, err := queryDates(values, "dateFrom", "from")
	if err != nil {
		return ledger.Query{}, err
	}
	to, err := queryDates(values, "dateTo", "to")
	if err != nil {
		return ledger.Query{}, err
	}
	q := ledger.Query{
		From:        from,
		To:          to,
		AccountID:   values.Get("accountId"),
		CategoryIDs: queryList(values, "categoryIds"),
	}
	return q, q.Validate()
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.GetTransaction(r.Context(), scope(r), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var amount *decimal.Decimal
	if req.Amount != nil {
		d, err := req.Amount.signed()
		if err != nil {
			writeError(w, r, err)
			return
		}
		amount = &d
	}

	sc := scope(r)
	t, err := s.ledger.UpdateTransaction(r.Context(), sc, pathID(r, "id"), ledger.TransactionPatch{
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Amount:      amount,
		Date:        req.Date,
		Description: sanitizePtr(req.Description),
		Notes:       sanitizePtr(req.Notes),
	})
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to update transaction", err, log.ComponentHTTP, log.OpUpdate,
			log.NewFields().WithScope(sc))
		writeError(w, r, err)
		return
	}
	s.logger.LogTransaction(r.Context(), log.OpUpdate, sc, t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	sc := scope(r)
	t, err := s.ledger.DeleteTransaction(r.Context(), sc, pathID(r, "id"))
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to delete transaction", err, log.ComponentHTTP, log.OpDelete,
			log.NewFields().WithScope(sc))
		writeError(w, r, err)
		return
	}
	s.logger.LogTransaction(r.Context(), log.OpDelete, sc, t)
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.Amount.unsigned()
	if err != nil {
		writeError(w, r, err)
		return
	}

	sc := scope(r)
	t, err := s.ledger.CreateTransfer(r.Context(), sc, ledger.NewTransfer{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Date:          req.Date,
		Description:   sanitizeInput(req.Description),
		Notes:         sanitizeInput(req.Notes),
	})
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to create transfer", err, log.ComponentHTTP, log.OpCreate,
			log.NewFields().WithScope(sc))
		writeError(w, r, err)
		return
	}
	s.logger.LogTransaction(r.Context(), log.OpCreate, sc, t)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := optionalAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sc := scope(r)
	t, err := s.ledger.UpdateTransfer(r.Context(), sc, pathID(r, "id"), ledger.TransferPatch{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Date:          req.Date,
		Description:   sanitizePtr(req.Description),
		Notes:         sanitizePtr(req.Notes),
	})
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to update transfer", err, log.ComponentHTTP, log.OpUpdate,
			log.NewFields().WithScope(sc))
		writeError(w, r, err)
		return
	}
	s.logger.LogTransaction(r.Context(), log.OpUpdate, sc, t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	sc := scope(r)
	id := pathID(r, "id")
	if err := s.ledger.DeleteTransfer(r.Context(), sc, id); err != nil {
		s.logger.LogError(r.Context(), "Failed to delete transfer", err, log.ComponentHTTP, log.OpDelete,
			log.NewFields().WithScope(sc))
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transfer deleted", log.FieldTransactionID, id)
	writeJSON(w, http.StatusNoContent, nil)
}
