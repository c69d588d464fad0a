package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-dmchat/internal/database"
	"github.com/npezzotti/go-dmchat/internal/messaging"
	"github.com/npezzotti/go-dmchat/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *DMChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *DMChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Printf("%d: %v", errResp.StatusCode, errResp)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// lookupError maps a failed single-row lookup to a not found or internal
// error response.
func lookupError(err error) *ApiError {
	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError()
	}
	return NewInternalServerError(err)
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *DMChatApp) toContact(u database.User, unread int) types.Contact {
	c := types.Contact{
		User:               toUser(u),
		IsOnline:           u.IsOnline,
		LastSeenDisplay:    s.cs.Presence().Display(u.IsOnline, u.LastSeen),
		UnreadCount:        unread,
		UnreadCountDisplay: messaging.CountDisplay(unread),
	}
	c.EmailAddress = ""
	if !u.IsOnline {
		c.LastSeenISO = u.LastSeen
	}
	return c
}

func (s *DMChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *DMChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newUser, err := s.db.CreateAccount(r.Context(), database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			s.writeError(w, NewConflictError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusCreated, toUser(newUser))
}

func (s *DMChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbUser, err := s.db.GetAccountByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewUnauthorizedError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	if !verifyPassword(dbUser.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	u := toUser(dbUser)
	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))
	s.writeJson(w, http.StatusOK, u)
}

func (s *DMChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetUser(r.Context(), userId)
	if err != nil {
		s.writeError(w, lookupError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *DMChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an expired one so the browser drops it
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *DMChatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	dbContacts, err := s.db.ListContacts(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	contacts := make([]types.Contact, 0, len(dbContacts))
	for _, c := range dbContacts {
		contacts = append(contacts, s.toContact(c.User, c.UnreadCount))
	}

	s.writeJson(w, http.StatusOK, contacts)
}

func (s *DMChatApp) openConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	otherId, err := strconv.Atoi(r.PathValue("userId"))
	if err != nil || otherId <= 0 || otherId == userId {
		s.writeError(w, NewBadRequestError())
		return
	}

	other, err := s.db.GetUser(r.Context(), otherId)
	if err != nil {
		s.writeError(w, lookupError(err))
		return
	}

	history, err := s.cs.Engine().OpenConversation(r.Context(), userId, otherId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	// the viewer's inbox badge for this contact is now stale
	if err := s.cs.PublishUnreadCount(r.Context(), otherId, userId); err != nil {
		s.log.Printf("publish unread count for user %d: %v", userId, err)
	}

	messages := make([]types.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, types.Message{
			Id:         m.Id,
			SenderId:   m.SenderId,
			ReceiverId: m.ReceiverId,
			Content:    m.Content,
			Timestamp:  m.CreatedAt,
			IsRead:     m.IsRead,
			IsMine:     m.IsMine,
		})
	}

	s.writeJson(w, http.StatusOK, types.Conversation{
		RoomName:  messaging.ConversationKey(userId, otherId).String(),
		OtherUser: s.toContact(other, 0),
		Messages:  messages,
	})
}

// currentUser loads the authenticated user for a WebSocket upgrade. It
// writes the error response itself and reports whether the upgrade may
// proceed.
func (s *DMChatApp) currentUser(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return types.User{}, false
	}

	user, err := s.db.GetUser(r.Context(), userId)
	if err != nil {
		s.writeError(w, lookupError(err))
		return types.User{}, false
	}

	return toUser(user), true
}

func (s *DMChatApp) servePresence(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServePresence(conn, user)
}

func (s *DMChatApp) serveChat(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServeConversation(conn, user, r.PathValue("room"))
}
