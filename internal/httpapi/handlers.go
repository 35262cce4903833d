package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/authjwt"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

// handleToken implements POST /token: admin login only, per spec.md §6
// ("Admin credential: username admin, password from config"). There is
// no general user-account store in original_source/ — only the fixed
// admin login issues tokens.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	password := r.URL.Query().Get("password")

	if !authjwt.VerifyAdminCredentials(username, password, s.cfg.AdminPassword) {
		respondError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	token, err := s.auth.IssueToken(authjwt.AdminUser)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
	})
}

type learnRequest struct {
	Content  string         `json:"content"`
	Category string         `json:"category"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Category == "" {
		req.Category = "general"
	}

	tenant := authjwt.TenantID(r)
	user, err := s.currentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err)
		return
	}

	id, err := s.engine.Learn(r.Context(), req.Content, tenant, user, req.Category, req.Metadata)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"doc_id": id, "status": "learned"})
}

type queryRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k"`
	MinScore float64 `json:"min_score"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	tenant := authjwt.TenantID(r)
	user, err := s.currentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err)
		return
	}

	docs, err := s.engine.Search(r.Context(), req.Query, tenant, user)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": docs, "count": len(docs)})
}

type proposeRequest struct {
	UserData       map[string]any `json:"user_data"`
	AccountHistory map[string]any `json:"account_history"`
	Domain         string         `json:"domain"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	tenant := authjwt.TenantID(r)
	result, err := s.engine.Propose(r.Context(), req.UserData, tenant, req.Domain, req.AccountHistory)
	if err != nil {
		// spec.md §6: Propose never surfaces a non-200 — failures become
		// {success: false, error} so the caller always gets a body to
		// render, per original_source/main.py's propose handler.
		respondJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	if err := s.store.StoreProposal(r.Context(), vectorstore.ProposalRecord{
		ID:          result.ProposalID,
		TenantID:    tenant,
		Domain:      req.Domain,
		UserData:    req.UserData,
		Proposal:    result.Proposal,
		AuditResult: auditToMap(result.Audit),
	}); err != nil {
		s.log.Error("failed to archive proposal", map[string]any{"error": err.Error(), "proposal_id": result.ProposalID})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"proposal":    result.Proposal,
		"proposal_id": result.ProposalID,
		"audit":       result.Audit,
	})
}

func auditToMap(a any) map[string]any {
	// AuditResult has plain exported fields with json tags; round-trip
	// through json to get a map for the proposals table's jsonb column.
	b, err := json.Marshal(a)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

type feedbackRequest struct {
	ProposalID       string         `json:"proposal_id"`
	Accepted         bool           `json:"accepted"`
	PerformanceAfter map[string]any `json:"performance_after"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	found, err := s.store.UpdateFeedback(r.Context(), req.ProposalID, req.Accepted, req.PerformanceAfter)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, apperrors.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "updated", "proposal_id": req.ProposalID})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"domains": s.domains.List()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tenant := authjwt.TenantID(r)
	stats, err := s.store.GetStats(r.Context(), tenant)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleProposalsHistory(w http.ResponseWriter, r *http.Request) {
	tenant := authjwt.TenantID(r)
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	history, err := s.store.GetProposalsHistory(r.Context(), tenant, limit, offset)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"proposals": history, "count": len(history)})
}

func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil || user != authjwt.AdminUser {
		respondError(w, http.StatusForbidden, errors.New("admin only"))
		return
	}

	deleted, err := s.store.CleanupOldFacts(r.Context(), s.cfg.CleanupDaysUnused, s.cfg.CleanupMinImportance)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, components := "ok", map[string]string{}
	if s.healthCheck != nil {
		status, components = s.healthCheck()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
		"version":    Version,
	})
}

// currentUser extracts the bearer-token subject, falling back to
// "anonymous" per spec.md §6. An actually-invalid (present but
// unparsable) token is an error the caller maps to 401.
func (s *Server) currentUser(r *http.Request) (string, error) {
	return s.auth.CurrentUser(r)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFromError maps the apperrors taxonomy to spec.md §7's status
// codes, grounded on manifold's own statusFromError switch shape.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
