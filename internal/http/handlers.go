package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"finanzas/internal/core"
)

type pageData struct {
	LoggedIn bool
	Username string
	Notice   string
	Error    string
}

type registerData struct {
	pageData
	FormUsername string
	FormBalance  string
}

type transactionFormData struct {
	pageData
	FormType   string
	FormAmount string
	Applied    *appliedData
}

type appliedData struct {
	Type       string
	Amount     string
	NewBalance string
}

type transactionsData struct {
	pageData
	Transactions []transactionRow
}

type transactionRow struct {
	ID     int64
	Type   string
	Amount string
	Date   string
	Status string
}

type balanceData struct {
	pageData
	Balance string
}

// requireUser gates the views that only make sense with a logged-in user.
// Anonymous requests get sent to the login page with a notice instead of a
// bare error.
func (s *Server) requireUser(next func(w http.ResponseWriter, r *http.Request, userID int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.currentUserID(r)
		if !ok {
			http.Redirect(w, r, "/login?notice=login-required", http.StatusSeeOther)
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := pageData{}
	if userID, ok := s.currentUserID(r); ok {
		data.LoggedIn = true
		data.Username = s.usernameFor(r, userID)
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "register.html", registerData{})
	case http.MethodPost:
		s.handleRegisterPost(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRegisterPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	username := sanitizeInput(r.FormValue("username"))
	password := r.FormValue("password")
	balanceRaw := r.FormValue("initial_balance")

	renderError := func(msg string) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, "register.html", registerData{
			pageData:     pageData{Error: msg},
			FormUsername: username,
			FormBalance:  balanceRaw,
		})
	}

	initialBalance := s.defaultInitialBalance
	if balanceRaw != "" {
		parsed, err := core.ParseInitialBalance(balanceRaw)
		if err != nil {
			renderError("Starting balance must be a decimal number.")
			return
		}
		initialBalance = parsed
	}

	user, err := s.store.Register(r.Context(), username, password, initialBalance)
	if err != nil {
		slog.WarnContext(r.Context(), "Registration rejected", "username", username, "error", err)
		renderError(errorMessage(err))
		return
	}

	slog.InfoContext(r.Context(), "User registered",
		"user_id", user.ID,
		"username", user.Username,
		"initial_balance_cents", user.Balance.Cents)

	http.Redirect(w, r, "/login?notice=registered", http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data := pageData{}
		switch r.URL.Query().Get("notice") {
		case "login-required":
			data.Notice = "You must log in first."
		case "registered":
			data.Notice = "Account created. Log in to continue."
		}
		s.render(w, "login.html", data)
	case http.MethodPost:
		s.handleLoginPost(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	username := sanitizeInput(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := s.store.Authenticate(r.Context(), username, password)
	if err != nil {
		slog.WarnContext(r.Context(), "Login failed", "username", username)
		w.WriteHeader(http.StatusUnauthorized)
		s.render(w, "login.html", pageData{Error: "Invalid username or password."})
		return
	}

	token, err := s.sessions.create(user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.setSessionCookie(w, token)
	slog.InfoContext(r.Context(), "User logged in", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.destroy(cookie.Value)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleNewTransaction(w http.ResponseWriter, r *http.Request, userID int64) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "transaction_new.html", transactionFormData{
			pageData: s.userPage(r, userID),
			FormType: string(core.Income),
		})
	case http.MethodPost:
		s.handleNewTransactionPost(w, r, userID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleNewTransactionPost(w http.ResponseWriter, r *http.Request, userID int64) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	txType := core.TransactionType(r.FormValue("type"))
	amountRaw := r.FormValue("amount")

	renderError := func(msg string) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, "transaction_new.html", transactionFormData{
			pageData:   s.userPageError(r, userID, msg),
			FormType:   string(txType),
			FormAmount: amountRaw,
		})
	}

	cents, err := core.ParseDecimalToCents(amountRaw)
	if err != nil {
		renderError("Amount must be a positive decimal number.")
		return
	}

	res, err := s.txService.Apply(r.Context(), userID, txType, core.Money{Cents: cents})
	if err != nil {
		slog.WarnContext(r.Context(), "Transaction rejected",
			"user_id", userID, "type", txType, "amount_cents", cents, "error", err)
		renderError(errorMessage(err))
		return
	}

	// The committed write makes the cached views stale.
	s.balanceCache.Delete(cacheKey(userID))
	s.historyCache.Delete(cacheKey(userID))

	slog.InfoContext(r.Context(), "Transaction applied",
		"user_id", userID,
		"transaction_id", res.Transaction.ID,
		"type", txType,
		"amount_cents", cents,
		"new_balance_cents", res.NewBalance.Cents)

	s.render(w, "transaction_new.html", transactionFormData{
		pageData: s.userPage(r, userID),
		FormType: string(txType),
		Applied: &appliedData{
			Type:       txType.String(),
			Amount:     formatAmount(res.Transaction.Amount),
			NewBalance: formatAmount(res.NewBalance),
		},
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := cacheKey(userID)
	txs, ok := s.historyCache.Get(key)
	if !ok {
		var err error
		txs, err = s.store.ListTransactions(r.Context(), userID)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to list transactions", "user_id", userID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		s.historyCache.Set(key, txs)
	}

	rows := make([]transactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, transactionRow{
			ID:     tx.ID,
			Type:   tx.Type.String(),
			Amount: formatAmount(tx.Amount),
			Date:   tx.Date.Format(core.TimeFormat),
			Status: tx.Status,
		})
	}

	s.render(w, "transactions.html", transactionsData{
		pageData:     s.userPage(r, userID),
		Transactions: rows,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := cacheKey(userID)
	balance, ok := s.balanceCache.Get(key)
	if !ok {
		var err error
		balance, err = s.store.GetBalance(r.Context(), userID)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to get balance", "user_id", userID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		s.balanceCache.Set(key, balance)
	}

	s.render(w, "balance.html", balanceData{
		pageData: s.userPage(r, userID),
		Balance:  formatAmount(balance),
	})
}

func (s *Server) userPage(r *http.Request, userID int64) pageData {
	return pageData{
		LoggedIn: true,
		Username: s.usernameFor(r, userID),
	}
}

func (s *Server) userPageError(r *http.Request, userID int64, msg string) pageData {
	d := s.userPage(r, userID)
	d.Error = msg
	return d
}

func (s *Server) usernameFor(r *http.Request, userID int64) string {
	user, err := s.store.FindByID(r.Context(), userID)
	if err != nil || user == nil {
		return ""
	}
	return user.Username
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	if s.templates == nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Failed to render template", "template", name, "error", err)
	}
}

func cacheKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// errorMessage maps domain error kinds to user-facing messages. Anything
// unexpected collapses to a generic message so internals stay internal.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrDuplicateUser):
		return "That username is already taken."
	case errors.Is(err, core.ErrInvalidInput):
		return fmt.Sprintf("Invalid input: %s.", trimErrorDetail(err))
	case errors.Is(err, core.ErrInvalidAmount):
		return "Amount must be greater than zero."
	case errors.Is(err, core.ErrInsufficientFunds):
		return "Insufficient funds for this withdrawal."
	case errors.Is(err, core.ErrUserNotFound):
		return "Account not found."
	case errors.Is(err, core.ErrNotFound):
		return "Invalid username or password."
	default:
		return "Something went wrong. Please try again."
	}
}
