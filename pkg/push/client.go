// Package push delivers multicast notifications through Firebase Cloud
// Messaging.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
)

// MaxTokensPerBatch is the FCM multicast limit.
const MaxTokensPerBatch = 500

var ErrUnavailable = errors.New("push provider not configured")

type messagingAPI interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Message is one notification addressed to many device tokens.
type Message struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// Result aggregates per-token outcomes. Invalid lists tokens FCM reported as
// permanently unusable.
type Result struct {
	Success int
	Failure int
	Invalid []string
}

type Client struct {
	api messagingAPI
}

// New builds an FCM client from inline JSON credentials or a credentials
// file. Without either the client is returned unavailable.
func New(ctx context.Context, cfg config.FirebaseConfig) (*Client, error) {
	var opt option.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	default:
		return &Client{}, nil
	}
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	msg, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &Client{api: msg}, nil
}

func newWithAPI(api messagingAPI) *Client {
	return &Client{api: api}
}

func (c *Client) Available() bool {
	return c != nil && c.api != nil
}

// Send delivers m in batches of MaxTokensPerBatch. A batch the transport
// rejects outright counts every token in it as failed; later batches are
// still attempted.
func (c *Client) Send(ctx context.Context, m Message) (Result, error) {
	var res Result
	if !c.Available() {
		return res, ErrUnavailable
	}
	var batchErr error
	for start := 0; start < len(m.Tokens); start += MaxTokensPerBatch {
		end := min(start+MaxTokensPerBatch, len(m.Tokens))
		batch := m.Tokens[start:end]
		resp, err := c.api.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: &messaging.Notification{Title: m.Title, Body: m.Body},
			Data:         m.Data,
		})
		if err != nil {
			res.Failure += len(batch)
			batchErr = errors.Join(batchErr, fmt.Errorf("fcm multicast: %w", err))
			continue
		}
		res.Success += resp.SuccessCount
		res.Failure += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(batch) {
				continue
			}
			if permanent(r.Error) {
				res.Invalid = append(res.Invalid, batch[i])
			}
		}
	}
	return res, batchErr
}

var (
	isUnregistered    = messaging.IsUnregistered
	isInvalidArgument = messaging.IsInvalidArgument
)

// permanent reports whether err means the token itself is dead. Invalid
// argument errors also cover malformed payloads, so they only count when
// FCM names the registration token.
func permanent(err error) bool {
	if err == nil {
		return false
	}
	if isUnregistered(err) {
		return true
	}
	return isInvalidArgument(err) && strings.Contains(strings.ToLower(err.Error()), "registration token")
}
