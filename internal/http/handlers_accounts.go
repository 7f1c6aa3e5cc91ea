package http

import (
	"net/http"
	"strings"

	"conti/internal/categories"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/log"

	"github.com/shopspring/decimal"
)

type accountRequest struct {
	Name           string           `json:"name"`
	Currency       string           `json:"currency"`
	Kind           core.AccountKind `json:"kind"`
	OpeningBalance amountInput      `json:"openingBalance"`
	OpeningDate    core.Date        `json:"openingDate"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	opening := decimal.Zero
	if strings.TrimSpace(string(req.OpeningBalance)) != "" {
		d, err := req.OpeningBalance.signed()
		if err != nil {
			writeError(w, r, err)
			return
		}
		opening = d
	}
	if req.Kind == "" {
		req.Kind = core.Asset
	}

	sc := scope(r)
	account, err := s.ledger.OpenAccount(r.Context(), sc, ledger.NewAccount{
		Name:           sanitizeInput(req.Name),
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		Kind:           req.Kind,
		OpeningBalance: opening,
		OpeningDate:    req.OpeningDate,
	})
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to open account", err, log.ComponentHTTP, log.OpCreate, nil)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.ledger.GetAccount(r.Context(), scope(r), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleBalanceCheck(w http.ResponseWriter, r *http.Request) {
	check, err := s.ledger.RecomputeBalance(r.Context(), scope(r), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !check.Consistent {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Account balance drift detected",
			log.FieldAccountID, check.AccountID,
			"stored", check.Stored.String(),
			"computed", check.Computed.String())
	}
	writeJSON(w, http.StatusOK, check)
}

type categoryRequest struct {
	Name     string            `json:"name"`
	Type     core.CategoryType `json:"type"`
	ParentID string            `json:"parentId"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := s.categories.Create(r.Context(), scope(r), categories.NewCategory{
		Name:     sanitizeInput(req.Name),
		Type:     core.CategoryType(strings.ToUpper(strings.TrimSpace(string(req.Type)))),
		ParentID: strings.TrimSpace(req.ParentID),
	})
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to create category", err, log.ComponentHTTP, log.OpCreate, nil)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.categories.List(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Category{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.categories.Get(r.Context(), scope(r), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}
