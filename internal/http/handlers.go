package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"paga/internal/core"
	"paga/internal/kv"
	"paga/internal/log"
)

// warnPersist is returned alongside the new state when the ledger advanced in
// memory but the store rejected the write.
const warnPersist = "state updated but could not be saved; it will be lost on restart"

type indexData struct {
	Balance     core.Money
	HasWage     bool
	Wage        core.Money
	LastAccrual string
	Now         string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	if s.templates == nil {
		s.reqLogger(r).ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	s.ledger.Refresh(r.Context())
	loc := s.ledger.Location()
	st := s.ledger.Snapshot()
	data := indexData{
		Balance: st.Balance,
		Now:     time.Now().In(loc).Format("02/01/2006"),
	}
	if wg, ok := st.Wage.Get(); ok {
		data.HasWage = true
		data.Wage = wg.Amount
		data.LastAccrual = wg.LastAccrual.In(loc).Format("02/01/2006 15:04")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.reqLogger(r).ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err, log.FieldOperation, log.OpRender)
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"templates": "ok", "storage": "ok"}
	status := http.StatusOK

	if s.templates == nil {
		checks["templates"] = "not loaded"
		status = http.StatusServiceUnavailable
	}
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.reqLogger(r).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			checks["storage"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s.ledger.Refresh(r.Context())
	writeJSON(w, http.StatusOK, newStateView(s.ledger.Snapshot(), s.ledger.Location()))
}

// handleSetWage accepts amount and an optional credit flag. Without the flag
// the first configuration credits the amount once and redefinitions do not.
func (s *Server) handleSetWage(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(p, "amount")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}
	policy, err := parseCreditPolicy(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err = s.ledger.SetDailyWage(r.Context(), amount, policy)
	s.respondMutation(w, r, log.OpSetWage, err)
}

func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(p, "amount")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	s.respondMutation(w, r, log.OpExpense, s.ledger.RecordExpense(r.Context(), amount))
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	balance, err := parseSignedAmount(p, "balance")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid balance")
		return
	}

	s.respondMutation(w, r, log.OpSetBalance, s.ledger.SetBalance(r.Context(), balance))
}

// handleReset requires confirm=yes. A failed clear leaves the ledger as it was,
// so unlike other mutations it is reported as a server error.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	if p.Get("confirm") != "yes" {
		writeError(w, http.StatusBadRequest, `reset requires confirm=yes`)
		return
	}

	if err := s.ledger.ResetAll(r.Context()); err != nil {
		s.reqLogger(r).ErrorContext(r.Context(), "Reset failed", log.FieldError, err, log.FieldOperation, log.OpReset)
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, newStateView(s.ledger.Snapshot(), s.ledger.Location()))
}

func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "malformed request body")
		return nil, false
	}
	return p, true
}

// respondMutation maps a ledger result to a response. Storage write failures
// are not fatal: the in-memory state moved, so the client gets it with a warning.
func (s *Server) respondMutation(w http.ResponseWriter, r *http.Request, op string, err error) {
	view := newStateView(s.ledger.Snapshot(), s.ledger.Location())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, kv.ErrStorageWrite):
		s.reqLogger(r).WarnContext(r.Context(), "Mutation not persisted", log.FieldOperation, op, log.FieldError, err)
		view.Warning = warnPersist
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, core.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
	default:
		s.reqLogger(r).ErrorContext(r.Context(), "Mutation failed", log.FieldOperation, op, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

// reqLogger carries the request id bound by the trace middleware.
func (s *Server) reqLogger(r *http.Request) *log.Logger {
	if l, ok := r.Context().Value(log.LoggerContextKey).(*log.Logger); ok {
		return l
	}
	return s.logger
}
