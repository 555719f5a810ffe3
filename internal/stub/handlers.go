/*
Package stub is the in-process backing service: the REST and realtime surface
the client core talks to, kept entirely in memory.

This file holds the REST handlers. Failure bodies are always {"error": "..."},
the shape connected clients surface verbatim.
*/
package stub

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatlink/internal/app/chat"
	"chatlink/internal/app/identity"
	"chatlink/internal/pkg/auth/jwt"
	"chatlink/internal/pkg/errs"
	"chatlink/internal/pkg/logx"
)

const (
	defaultHistoryLimit = 50
	maxUploadBytes      = 32 << 20
)

// respondJSON writes v with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logx.Error(err, "Failed to encode response body")
		}
	}
}

// respondError writes an {"error": ...} body, mapping known error codes to
// HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var ce *errs.ClientError
	if errors.As(err, &ce) {
		switch ce.Code {
		case errs.ErrRoomNotFound:
			status = http.StatusNotFound
		case errs.ErrNotRoomCreator:
			status = http.StatusForbidden
		case errs.ErrInvalidParams, errs.ErrRoomNameRequired, errs.ErrEmptyMessage:
			status = http.StatusBadRequest
		case errs.ErrNotAuthenticated, errs.ErrCredentialExpired:
			status = http.StatusUnauthorized
		}
	}

	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// bindJSON decodes the request body into v.
func bindJSON(r *http.Request, v any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.New(errs.ErrInvalidParams, "malformed JSON body")
	}
	return nil
}

// HandleVerifyToken exchanges an externally issued identity token for a
// credential pair. The stub does not reach an external verifier; it accepts
// tokens of the form "uid:displayName[:photoURL]" and mints its own pair.
func HandleVerifyToken(store *Store, secretKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input struct {
			IDToken string `json:"idToken"`
		}
		if err := bindJSON(r, &input); err != nil {
			respondError(w, err)
			return
		}

		parts := strings.SplitN(input.IDToken, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			respondError(w, errs.New(errs.ErrInvalidParams, "unverifiable identity token"))
			return
		}

		summary := identity.Summary{UID: parts[0], DisplayName: parts[1]}
		if len(parts) == 3 {
			summary.PhotoURL = parts[2]
		}
		store.UpsertUser(summary)

		access, err := jwt.Generate(summary.UID, jwt.UseAccess, secretKey, jwt.AccessExpiration)
		if err != nil {
			respondError(w, errs.New(errs.ErrUnknown))
			return
		}
		refresh, err := jwt.Generate(summary.UID, jwt.UseRefresh, secretKey, jwt.RefreshExpiration)
		if err != nil {
			respondError(w, errs.New(errs.ErrUnknown))
			return
		}
		store.RememberRefresh(refresh, summary.UID)

		logx.Info("Identity verified", "uid", summary.UID)

		respondJSON(w, http.StatusOK, map[string]any{
			"user": identity.Identity{
				Summary:      summary,
				AccessToken:  access,
				RefreshToken: refresh,
			},
		})
	}
}

// HandleRefreshToken exchanges a valid refresh token for a fresh access token.
func HandleRefreshToken(store *Store, secretKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := bindJSON(r, &input); err != nil {
			respondError(w, err)
			return
		}

		claims, err := jwt.Parse(input.RefreshToken, secretKey)
		if err != nil || claims.Use != jwt.UseRefresh {
			respondError(w, errs.New(errs.ErrCredentialExpired))
			return
		}
		if uid, ok := store.RefreshOwner(input.RefreshToken); !ok || uid != claims.UID {
			respondError(w, errs.New(errs.ErrCredentialExpired))
			return
		}

		access, err := jwt.Generate(claims.UID, jwt.UseAccess, secretKey, jwt.AccessExpiration)
		if err != nil {
			respondError(w, errs.New(errs.ErrUnknown))
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{"accessToken": access})
	}
}

// RequireAccess validates the Bearer access token and stashes the caller's uid
// in the request context.
func RequireAccess(secretKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondError(w, errs.New(errs.ErrNotAuthenticated))
				return
			}

			claims, err := jwt.Parse(token, secretKey)
			if err != nil || claims.Use != jwt.UseAccess {
				respondError(w, errs.New(errs.ErrCredentialExpired))
				return
			}

			next.ServeHTTP(w, r.WithContext(jwt.WithUID(r.Context(), claims.UID)))
		})
	}
}

// HandleListRooms returns every room.
func HandleListRooms(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"rooms": store.ListRooms()})
	}
}

// HandleCreateRoom creates a room from the posted request.
func HandleCreateRoom(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input chat.CreateRoomRequest
		if err := bindJSON(r, &input); err != nil {
			respondError(w, err)
			return
		}

		if input.CreatedBy == "" {
			input.CreatedBy = jwt.UIDFrom(r.Context())
		}

		room, err := store.CreateRoom(input)
		if err != nil {
			respondError(w, err)
			return
		}

		logx.Info("Room created", "room_id", room.ID, "created_by", room.CreatedBy)

		respondJSON(w, http.StatusOK, map[string]any{"room": room})
	}
}

// HandleGetRoom returns one room by id.
func HandleGetRoom(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "id")

		room, ok := store.GetRoom(roomID)
		if !ok {
			respondError(w, errs.New(errs.ErrRoomNotFound, roomID))
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{"room": room})
	}
}

// HandleDeleteRoom removes a room; only its creator may.
func HandleDeleteRoom(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "id")

		var input struct {
			UserID string `json:"userId"`
		}
		if err := bindJSON(r, &input); err != nil {
			respondError(w, err)
			return
		}
		if input.UserID == "" {
			input.UserID = jwt.UIDFrom(r.Context())
		}

		if err := store.DeleteRoom(roomID, input.UserID); err != nil {
			respondError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// HandleUpdateParticipants adds or removes a participant.
func HandleUpdateParticipants(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "id")

		var input struct {
			UserID string `json:"userId"`
			Action string `json:"action"`
		}
		if err := bindJSON(r, &input); err != nil {
			respondError(w, err)
			return
		}

		room, err := store.UpdateParticipants(roomID, input.UserID, input.Action)
		if err != nil {
			respondError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{"room": room})
	}
}

// HandleListMessages returns a room's message history, oldest first.
func HandleListMessages(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		if _, ok := store.GetRoom(roomID); !ok {
			respondError(w, errs.New(errs.ErrRoomNotFound, roomID))
			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		respondJSON(w, http.StatusOK, map[string]any{"messages": store.Messages(roomID, limit)})
	}
}

// HandleSendMessage appends a message to a room. A JSON body carries a plain
// text message; a multipart body additionally carries attachments under
// repeated "files" parts.
func HandleSendMessage(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		var msg chat.Message
		var err error

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			msg, err = decodeMultipartMessage(r)
		} else {
			msg, err = decodeJSONMessage(r)
		}
		if err != nil {
			respondError(w, err)
			return
		}

		if msg.Text == "" && len(msg.Attachments) == 0 {
			respondError(w, errs.New(errs.ErrEmptyMessage))
			return
		}

		stored, err := store.AppendMessage(roomID, msg)
		if err != nil {
			respondError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{"message": stored})
	}
}

func decodeJSONMessage(r *http.Request) (chat.Message, error) {
	var input struct {
		Text   string           `json:"text"`
		Sender identity.Summary `json:"sender"`
	}
	if err := bindJSON(r, &input); err != nil {
		return chat.Message{}, err
	}

	return chat.Message{Text: input.Text, Sender: input.Sender}, nil
}

// decodeMultipartMessage reads the text and sender fields plus the attachment
// parts. File contents are not persisted; each attachment gets a synthetic URL
// under the room's namespace, standing in for uploaded-object storage.
func decodeMultipartMessage(r *http.Request) (chat.Message, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return chat.Message{}, errs.New(errs.ErrInvalidParams, "malformed multipart body")
	}

	msg := chat.Message{Text: r.FormValue("text")}

	if raw := r.FormValue("sender"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.Sender); err != nil {
			return chat.Message{}, errs.New(errs.ErrInvalidParams, "malformed sender field")
		}
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			file, err := header.Open()
			if err != nil {
				return chat.Message{}, errs.New(errs.ErrInvalidParams, "unreadable file part")
			}
			size, err := io.Copy(io.Discard, file)
			file.Close()
			if err != nil {
				return chat.Message{}, errs.New(errs.ErrInvalidParams, "unreadable file part")
			}

			msg.Attachments = append(msg.Attachments, chat.Attachment{
				Name:     header.Filename,
				MimeType: header.Header.Get("Content-Type"),
				Size:     size,
				URL:      "stub://files/" + chi.URLParam(r, "roomId") + "/" + header.Filename,
			})
		}
	}

	return msg, nil
}
