package web

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/taxonomy"
)

const (
	manageNonceAction = "simpletags_admin"
	ajaxNonceAction   = "st-admin-js"

	checkDeleteTermsAction = "taxopress_check_delete_terms"
)

// manageResponse is the JSON response shape for /admin/manage.
type manageResponse struct {
	Action     string           `json:"action"`
	Taxonomy   string           `json:"taxonomy,omitempty"`
	Notices    taxonomy.Notices `json:"notices"`
	DefaultTab string           `json:"default_tab,omitempty"`
}

// handleManage runs one term tool.
//
// POST /admin/manage?taxo=post_tag
//
//	term_action=renameterm&term_nonce=...&renameterm_old=a&renameterm_new=b
//
// The nonce is checked before the taxonomy; both failures are reported as
// notices, with 403 and 400. Tool outcomes are always 200, successful or not.
func (s *Server) handleManage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	action := r.PostForm.Get("term_action")
	if action == "" {
		writeError(w, http.StatusBadRequest, "missing term_action")
		return
	}
	resp := manageResponse{Action: action, Notices: taxonomy.Notices{}}

	if !s.nonces.Verify(r.PostForm.Get("term_nonce"), manageNonceAction) {
		resp.Notices = append(resp.Notices, taxonomy.Notice{Kind: taxonomy.KindError, Message: "Security problem. Try again."})
		writeJSON(w, http.StatusForbidden, resp)
		return
	}
	tax := r.FormValue("taxo")
	if tax == "" {
		tax = s.cfg.DefaultTaxonomy
	}
	if !s.cfg.HasTaxonomy(tax) {
		resp.Notices = append(resp.Notices, taxonomy.Notice{Kind: taxonomy.KindError, Message: "Missing valid taxonomy for work. Try again."})
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	resp.Taxonomy = tax

	ctx := r.Context()
	sc := taxonomy.Scope{Taxonomy: tax, PostType: s.cfg.PostType, PostTypeName: s.cfg.PostTypeName}
	field := func(name string) string { return strings.TrimSpace(r.PostForm.Get(name)) }

	switch action {
	case "renameterm":
		resp.Notices = s.manager.RenameTerms(ctx, sc, field("renameterm_old"), field("renameterm_new"))
		resp.DefaultTab = ".st-rename-terms"
	case "mergeterm":
		// The merge form reuses the rename field names.
		resp.Notices = s.manager.MergeTerms(ctx, sc, field("renameterm_old"), field("renameterm_new"), field("mergeterm_type"))
		resp.DefaultTab = ".st-merge-terms"
	case "addterm":
		resp.Notices = s.manager.AddMatchTerms(ctx, sc, field("addterm_match"), field("addterm_new"))
		resp.DefaultTab = ".st-add-terms"
	case "removeterm":
		resp.Notices = s.manager.RemoveMatchTerms(ctx, sc, field("removeterm_match"), field("remove_term"))
		resp.DefaultTab = ".st-remove-terms"
	case "removeterms":
		resp.Notices = s.manager.RemoveTerms(ctx, sc, field("remove_terms"))
	case "remove-rarelyterms":
		resp.Notices = s.manager.RemoveRarelyUsed(ctx, sc, intval(field("number-rarely")))
		resp.DefaultTab = ".st-delete-unuused-terms"
	case "deleteterms":
		resp.Notices = s.manager.DeleteTermsByList(ctx, sc, field("delete_terms"))
	default:
		appLog.Warn("manage: unknown term action", "action", action)
	}

	if resp.Notices == nil {
		resp.Notices = taxonomy.Notices{}
	}
	appLog.Info("manage request", "action", action, "taxonomy", tax, "ok", resp.Notices.OK(), "notices", len(resp.Notices))
	writeJSON(w, http.StatusOK, resp)
}

type ajaxMessage struct {
	Message string `json:"message"`
}

// ajaxResponse carries the message both at the top level and under data.
type ajaxResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    ajaxMessage `json:"data"`
}

func writeAjax(w http.ResponseWriter, status int, success bool, msg string) {
	writeJSON(w, status, ajaxResponse{Success: success, Message: msg, Data: ajaxMessage{Message: msg}})
}

// handleAjax serves the admin script endpoints.
//
// POST /admin/ajax?action=taxopress_check_delete_terms
//
//	nonce=...&taxonomy=post_tag&number=3
func (s *Server) handleAjax(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	if r.FormValue("action") != checkDeleteTermsAction {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if !s.nonces.Verify(r.PostForm.Get("nonce"), ajaxNonceAction) {
		writeAjax(w, http.StatusForbidden, false, "Nonce verification failed.")
		return
	}

	res, err := s.manager.CheckDeleteTerms(strings.TrimSpace(r.PostForm.Get("taxonomy")), intval(r.PostForm.Get("number")))
	switch {
	case errors.Is(err, taxonomy.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, "number out of range")
	case err != nil:
		appLog.Error("check delete terms failed", err)
		writeError(w, http.StatusInternalServerError, "failed to count terms")
	default:
		writeAjax(w, http.StatusOK, res.Success, res.Message)
	}
}

// termsResponse is the JSON response shape for /api/terms.
type termsResponse struct {
	Taxonomy string       `json:"taxonomy"`
	Terms    []model.Term `json:"terms"`
}

// handleTerms lists the terms of a taxonomy.
//
// GET /api/terms?taxonomy=post_tag
func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tax := r.URL.Query().Get("taxonomy")
	if tax == "" {
		tax = s.cfg.DefaultTaxonomy
	}
	if !s.cfg.HasTaxonomy(tax) {
		writeError(w, http.StatusBadRequest, "unknown taxonomy")
		return
	}
	terms, err := s.store.Terms(tax)
	if err != nil {
		appLog.Error("list terms failed", err, "taxonomy", tax)
		writeError(w, http.StatusInternalServerError, "failed to list terms")
		return
	}
	if terms == nil {
		terms = []model.Term{}
	}
	writeJSON(w, http.StatusOK, termsResponse{Taxonomy: tax, Terms: terms})
}

// intval reads the leading integer of s and ignores the rest, so "12abc"
// is 12 and "abc" is 0. Out-of-range values saturate.
func intval(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) {
		if s[0] == '-' {
			return math.MinInt
		}
		return math.MaxInt
	}
	if err != nil {
		return 0
	}
	return n
}
