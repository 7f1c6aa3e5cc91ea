package http

import (
	"net/http"
	"strings"

	"conti/internal/bills"
	"conti/internal/core"
	"conti/internal/log"
)

type billRequest struct {
	Name       string       `json:"name"`
	Amount     amountInput  `json:"amount"`
	AccountID  string       `json:"accountId"`
	CategoryID string       `json:"categoryId"`
	AnchorDate core.Date    `json:"anchorDate"`
	Cadence    core.Cadence `json:"cadence"`
	EndDate    core.Date    `json:"endDate"`
}

// instanceEditRequest is the PATCH body of one occurrence. An explicit null
// endDate reopens the series.
type instanceEditRequest struct {
	Name          *string       `json:"name"`
	Amount        *amountInput  `json:"amount"`
	AccountID     *string       `json:"accountId"`
	CategoryID    *string       `json:"categoryId"`
	Cadence       *core.Cadence `json:"cadence"`
	EndDate       nullableDate  `json:"endDate"`
	ApplyToFuture bool          `json:"applyToFuture"`
}

type instanceDeleteRequest struct {
	ApplyToFuture bool `json:"applyToFuture"`
}

type payRequest struct {
	PaidDate core.Date `json:"paidDate"`
}

// billView adds the inclusive end date to a bill and, when a window was
// asked for, its instances.
type billView struct {
	core.Bill
	EndDate   core.Date       `json:"endDate"`
	Instances []core.Instance `json:"instances,omitempty"`
}

type instanceList struct {
	DateStart core.Date       `json:"dateStart"`
	DateEnd   core.Date       `json:"dateEnd"`
	Instances []core.Instance `json:"instances"`
}

func newBillView(b core.Bill) billView {
	return billView{Bill: b, EndDate: b.EndDate()}
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
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
	bill, err := s.bills.CreateBill(r.Context(), sc, bills.NewBill{
		Name:       sanitizeInput(req.Name),
		Amount:     amount,
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		AnchorDate: req.AnchorDate,
		Cadence:    core.Cadence(strings.ToUpper(string(req.Cadence))),
		EndDate:    req.EndDate,
	})
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to create bill", err, log.ComponentHTTP, log.OpCreate,
			log.NewFields().WithScope(sc))
		writeError(w, r, err)
		return
	}
	s.logger.LogBillOp(r.Context(), log.OpCreate, sc, bill.ID, bill.AnchorDate, false)
	writeJSON(w, http.StatusCreated, newBillView(bill))
}

// billWindow reads dateStart (inclusive) and dateEnd (exclusive). Without
// bounds it is the current calendar month.
func (s *Server) billWindow(r *http.Request) (core.Date, core.Date, bool, error) {
	values := r.URL.Query()
	from, err := queryDate(values, "dateStart")
	if err != nil {
		return core.Date{}, core.Date{}, false, err
	}
	to, err := queryDate(values, "dateEnd")
	if err != nil {
		return core.Date{}, core.Date{}, false, err
	}
	switch {
	case from.IsZero() && to.IsZero():
		today := s.ledger.Today()
		from = core.NewDate(today.Year(), today.Month(), 1)
		return from, from.AddMonthsClamped(1), false, nil
	case from.IsZero():
		from = to.AddMonthsClamped(-1)
	case to.IsZero():
		to = from.AddMonthsClamped(1)
	}
	return from, to, true, nil
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	from, to, _, err := s.billWindow(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.bills.ListInstances(r.Context(), scope(r), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Instance{}
	}
	writeJSON(w, http.StatusOK, instanceList{DateStart: from, DateEnd: to, Instances: list})
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	sc := scope(r)
	id := pathID(r, "id")
	bill, err := s.bills.GetBill(r.Context(), sc, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := newBillView(bill)

	from, to, explicit, err := s.billWindow(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if explicit {
		if view.Instances, err = s.bills.Instances(r.Context(), sc, id, from, to); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	sc := scope(r)
	id := pathID(r, "id")
	if err := s.bills.DeleteBill(r.Context(), sc, id); err != nil {
		s.logger.LogError(r.Context(), "Failed to delete bill", err, log.ComponentHTTP, log.OpDelete,
			log.NewFields().WithScope(sc).WithBill(id, core.Date{}))
		writeError(w, r, err)
		return
	}
	s.logger.LogBillOp(r.Context(), log.OpDelete, sc, id, core.Date{}, true)
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r, "targetDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inst, err := s.bills.Instance(r.Context(), scope(r), pathID(r, "id"), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleEditInstance(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r, "targetDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req instanceEditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := optionalAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	patch := core.BillPatch{
		Name:       sanitizePtr(req.Name),
		Amount:     amount,
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		Cadence:    req.Cadence,
	}
	if req.Cadence != nil {
		c := core.Cadence(strings.ToUpper(string(*req.Cadence)))
		patch.Cadence = &c
	}
	if req.EndDate.Set {
		if req.EndDate.Null {
			patch.ClearEndDate = true
		} else {
			end := req.EndDate.Value
			patch.EndDate = &end
		}
	}

	sc := scope(r)
	id := pathID(r, "id")
	res, err := s.bills.Edit(r.Context(), sc, id, date, patch, req.ApplyToFuture)
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to edit bill instance", err, log.ComponentHTTP, log.OpUpdate,
			log.NewFields().WithScope(sc).WithBill(id, date))
		writeError(w, r, err)
		return
	}
	s.logger.LogBillOp(r.Context(), log.OpUpdate, sc, id, date, req.ApplyToFuture)
	writeJSON(w, http.StatusOK, editView{Bill: newBillView(res.Bill), Instance: res.Instance})
}

// editView is bills.EditResult with the bill's end date exposed.
type editView struct {
	Bill     billView       `json:"bill"`
	Instance *core.Instance `json:"instance,omitempty"`
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r, "targetDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	// applyToFuture comes from the body or, for clients that cannot send a
	// DELETE body, from the query string.
	var req instanceDeleteRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if r.URL.Query().Has("applyToFuture") {
		if req.ApplyToFuture, err = queryBool(r.URL.Query(), "applyToFuture"); err != nil {
			writeError(w, r, err)
			return
		}
	}

	sc := scope(r)
	id := pathID(r, "id")
	res, err := s.bills.Delete(r.Context(), sc, id, date, req.ApplyToFuture)
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to delete bill instance", err, log.ComponentHTTP, log.OpDelete,
			log.NewFields().WithScope(sc).WithBill(id, date))
		writeError(w, r, err)
		return
	}
	s.logger.LogBillOp(r.Context(), log.OpDelete, sc, id, date, req.ApplyToFuture)
	writeJSON(w, http.StatusOK, editView{Bill: newBillView(res.Bill), Instance: res.Instance})
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r, "targetDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req payRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	sc := scope(r)
	id := pathID(r, "id")
	inst, err := s.bills.Pay(r.Context(), sc, id, date, req.PaidDate)
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to pay bill instance", err, log.ComponentHTTP, log.OpPay,
			log.NewFields().WithScope(sc).WithBill(id, date))
		writeError(w, r, err)
		return
	}
	s.logger.LogBillOp(r.Context(), log.OpPay, sc, id, date, false)
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleUnpay(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r, "targetDate")
	if err != nil {
		writeError(w, r, err)
		return
	}

	sc := scope(r)
	id := pathID(r, "id")
	inst, err := s.bills.Unpay(r.Context(), sc, id, date)
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to unpay bill instance", err, log.ComponentHTTP, log.OpUnpay,
			log.NewFields().WithScope(sc).WithBill(id, date))
		writeError(w, r, err)
		return
	}
	s.logger.LogBillOp(r.Context(), log.OpUnpay, sc, id, date, false)
	writeJSON(w, http.StatusOK, inst)
}
