package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/songforge/songforge/pkg/storage"
)

type creditTransaction struct {
	ID           string    `json:"id"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	Type         string    `json:"type"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

type creditsResponse struct {
	Balance      int                  `json:"balance"`
	Transactions []*creditTransaction `json:"transactions"`
}

func (s *Server) listCredits(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		size = 50
	}
	txs, err := s.store.ListCreditTransactions(r.Context(), user.ID, page, size)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := &creditsResponse{
		Balance:      user.CreditsBalance,
		Transactions: []*creditTransaction{},
	}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, &creditTransaction{
			ID:           tx.ID,
			Amount:       tx.Amount,
			BalanceAfter: tx.BalanceAfter,
			Type:         string(tx.Type),
			Description:  tx.Description,
			CreatedAt:    tx.CreatedAt,
		})
	}
	s.respond(w, http.StatusOK, resp)
}

type grantRequest struct {
	Email       string `json:"email"`
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) grantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Email == "" {
		s.badRequest(w, "email is required")
		return
	}
	if req.Amount <= 0 {
		s.badRequest(w, "amount must be positive")
		return
	}
	ctx := r.Context()
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		s.fail(w, err)
		return
	}
	description := req.Description
	if description == "" {
		description = "Manual credit grant"
	}
	if err := s.store.GrantCredits(ctx, user.ID, req.Amount, description); err != nil {
		s.fail(w, err)
		return
	}
	user, err = s.store.GetUser(ctx, user.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"email":   user.Email,
		"balance": user.CreditsBalance,
	})
}

type promptRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Activate bool   `json:"activate"`
}

func (s *Server) setPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Type == "" || req.Content == "" {
		s.badRequest(w, "type and content are required")
		return
	}
	ctx := r.Context()
	prompt := &storage.SystemPrompt{
		ID:      ulid.Make().String(),
		Type:    req.Type,
		Content: req.Content,
	}
	if err := s.store.SetSystemPrompt(ctx, prompt); err != nil {
		s.fail(w, err)
		return
	}
	if req.Activate {
		if err := s.store.ActivatePrompt(ctx, prompt.ID); err != nil {
			s.fail(w, err)
			return
		}
		prompt.Active = true
	}
	s.respond(w, http.StatusCreated, prompt)
}

func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.store.ListSystemPrompts(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, prompts)
}
