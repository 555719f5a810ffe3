/*
Package api is the authenticated request/response client for the backing service.

This file wraps the message endpoints. Sends with attachments use multipart
encoding with repeated files[] parts; plain text sends use JSON.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"chatlink/internal/app/chat"
	"chatlink/internal/pkg/errs"
)

// ListMessages fetches up to limit messages of a room, oldest first.
func (g *Gateway) ListMessages(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	var out struct {
		Messages []chat.Message `json:"messages"`
	}

	endpoint := fmt.Sprintf("message/%s?limit=%d", roomID, limit)
	if err := g.Do(ctx, "GET", endpoint, nil, &out); err != nil {
		return nil, err
	}

	return out.Messages, nil
}

// SendMessage submits a message to a room and returns the server-confirmed
// record, timestamp and id assigned.
func (g *Gateway) SendMessage(ctx context.Context, roomID string, req chat.SendMessageRequest) (chat.Message, error) {
	if req.Text == "" && len(req.Files) == 0 {
		return chat.Message{}, errs.New(errs.ErrEmptyMessage)
	}

	var out struct {
		Message chat.Message `json:"message"`
	}

	if len(req.Files) == 0 {
		body := map[string]any{"text": req.Text, "sender": req.Sender}
		if err := g.Do(ctx, "POST", "message/"+roomID, body, &out); err != nil {
			return chat.Message{}, err
		}
		return out.Message, nil
	}

	if err := g.sendMultipart(ctx, roomID, req, &out); err != nil {
		return chat.Message{}, err
	}

	return out.Message, nil
}

// sendMultipart executes an attachment send. The body is rebuilt per attempt
// so the gateway's single retry works for multipart requests too.
func (g *Gateway) sendMultipart(ctx context.Context, roomID string, req chat.SendMessageRequest, out any) error {
	senderJSON, err := json.Marshal(req.Sender)
	if err != nil {
		return errs.New(errs.ErrInvalidParams, err.Error())
	}

	build := func(token string) (*http.Request, error) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)

		if req.Text != "" {
			if err := writer.WriteField("text", req.Text); err != nil {
				return nil, err
			}
		}
		if err := writer.WriteField("sender", string(senderJSON)); err != nil {
			return nil, err
		}

		for _, file := range req.Files {
			header := textproto.MIMEHeader{}
			header.Set("Content-Disposition",
				fmt.Sprintf(`form-data; name="files"; filename=%s`, strconv.Quote(file.Name)))
			header.Set("Content-Type", file.MimeType)

			part, err := writer.CreatePart(header)
			if err != nil {
				return nil, err
			}
			if _, err := part.Write(file.Data); err != nil {
				return nil, err
			}
		}

		if err := writer.Close(); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url("message/"+roomID), &body)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", writer.FormDataContentType())
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
		return httpReq, nil
	}

	return g.execute(ctx, build, out)
}
