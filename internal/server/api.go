// Package server implements the REST endpoints around the chat core: message
// history, room management, and user accounts.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/yapperchat/yapper/internal/store"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatorID   int64  `json:"creator_id"`
}

type apiError struct {
	Detail string `json:"detail"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("error writing json response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, apiError{Detail: detail})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// RoomMessagesHandler returns the most recent messages for a room in
// chronological order. limit defaults to 100.
func (s *Service) RoomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "room_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.db.RecentMessages(r.Context(), roomID, limit)
	if err != nil {
		s.log.Error().Err(err).Int64("room", roomID).Msg("history query failed")
		s.writeError(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	s.writeJSON(w, http.StatusOK, messages)
}

// ListRoomsHandler returns every room so clients can present a join list.
func (s *Service) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.db.Rooms(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("room list query failed")
		s.writeError(w, http.StatusInternalServerError, "could not load rooms")
		return
	}
	if rooms == nil {
		rooms = []store.Room{}
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

// CreateRoomHandler creates a room owned by an existing user.
func (s *Service) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "room name is required")
		return
	}

	room, err := s.db.CreateRoom(r.Context(), req.Name, req.Description, req.CreatorID)
	if err != nil {
		if errors.Is(err, store.ErrConstraint) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("could not create room %s", req.Name))
			return
		}
		s.log.Error().Err(err).Str("name", req.Name).Msg("room insert failed")
		s.writeError(w, http.StatusInternalServerError, "could not create room")
		return
	}
	s.writeJSON(w, http.StatusCreated, room)
}

// DeleteRoomHandler removes a room and its message history.
func (s *Service) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "room_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	if err := s.db.DeleteRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "room not found")
			return
		}
		s.log.Error().Err(err).Int64("room", roomID).Msg("room delete failed")
		s.writeError(w, http.StatusInternalServerError, "could not delete room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameRoomHandler updates only the room name.
func (s *Service) RenameRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "room_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	name := r.URL.Query().Get("val")
	if strings.TrimSpace(name) == "" {
		s.writeError(w, http.StatusBadRequest, "val query parameter is required")
		return
	}
	if err := s.db.RenameRoom(r.Context(), roomID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "room not found")
			return
		}
		s.log.Error().Err(err).Int64("room", roomID).Msg("room rename failed")
		s.writeError(w, http.StatusInternalServerError, "could not rename room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateUserHandler registers a new account. The password is bcrypt-hashed
// before it touches the database; duplicate usernames and emails are checked
// up front for friendlier errors, with the unique constraints as backstop.
func (s *Service) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case len(req.Username) < 3 || len(req.Username) > 50:
		s.writeError(w, http.StatusBadRequest, "username must be 3-50 characters")
		return
	case !strings.Contains(req.Email, "@"):
		s.writeError(w, http.StatusBadRequest, "invalid email address")
		return
	case len(req.Password) < 6:
		s.writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	if existing, err := s.db.UserByUsername(r.Context(), req.Username); err == nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("user with username (%s) already exists", existing.Username))
		return
	}
	if existing, err := s.db.UserByEmail(r.Context(), req.Email); err == nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("user with email (%s) already exists", existing.Email))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error().Err(err).Msg("password hash failed")
		s.writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}

	user, err := s.db.CreateUser(r.Context(), req.Username, req.Email, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrConstraint) {
			s.writeError(w, http.StatusBadRequest, "unable to add user due to database constraints")
			return
		}
		s.log.Error().Err(err).Str("username", req.Username).Msg("user insert failed")
		s.writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

// GetUserHandler returns one user's public fields.
func (s *Service) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := s.db.UserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("user with id %d does not exist", userID))
			return
		}
		s.log.Error().Err(err).Int64("user", userID).Msg("user query failed")
		s.writeError(w, http.StatusInternalServerError, "could not load user")
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

// DeleteUserHandler removes an account and cascades to its rooms and messages.
func (s *Service) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.db.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("user with id %d does not exist", userID))
			return
		}
		s.log.Error().Err(err).Int64("user", userID).Msg("user delete failed")
		s.writeError(w, http.StatusInternalServerError, "could not delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
