/*
Package api is the authenticated request/response client for the backing service.

This file wraps the room endpoints of the REST surface.
*/
package api

import (
	"context"
	"errors"
	"net/http"

	"chatlink/internal/app/chat"
	"chatlink/internal/pkg/errs"
)

// Participant update actions accepted by the backing service.
const (
	ParticipantAdd    = "add"
	ParticipantRemove = "remove"
)

// ListRooms fetches all rooms visible to the current identity.
func (g *Gateway) ListRooms(ctx context.Context) ([]chat.Room, error) {
	var out struct {
		Rooms []chat.Room `json:"rooms"`
	}

	if err := g.Do(ctx, "GET", "room", nil, &out); err != nil {
		return nil, err
	}

	return out.Rooms, nil
}

// CreateRoom creates a room on the backing service and returns its record.
func (g *Gateway) CreateRoom(ctx context.Context, req chat.CreateRoomRequest) (chat.Room, error) {
	var out struct {
		Room chat.Room `json:"room"`
	}

	if err := g.Do(ctx, "POST", "room/create", req, &out); err != nil {
		return chat.Room{}, err
	}

	return out.Room, nil
}

// GetRoom fetches the latest state of a single room.
func (g *Gateway) GetRoom(ctx context.Context, roomID string) (chat.Room, error) {
	var out struct {
		Room chat.Room `json:"room"`
	}

	if err := g.Do(ctx, "GET", "room/"+roomID, nil, &out); err != nil {
		var ce *errs.ClientError
		if errors.As(err, &ce) && ce.Status == http.StatusNotFound {
			return chat.Room{}, errs.New(errs.ErrRoomNotFound, roomID)
		}
		return chat.Room{}, err
	}

	return out.Room, nil
}

// DeleteRoom removes a room. The backing service enforces that only the
// creator may do this; the reconciler additionally checks before calling.
func (g *Gateway) DeleteRoom(ctx context.Context, roomID, userID string) error {
	return g.Do(ctx, "DELETE", "room/"+roomID, map[string]string{"userId": userID}, nil)
}

// UpdateParticipants adds or removes userID on the room's participant set.
func (g *Gateway) UpdateParticipants(ctx context.Context, roomID, userID, action string) error {
	body := map[string]string{"userId": userID, "action": action}
	return g.Do(ctx, "PUT", "room/"+roomID+"/participants", body, nil)
}
