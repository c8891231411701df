package push

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
)

type stubMessaging struct {
	batches [][]string
	fail    map[string]error
	err     error
}

func (s *stubMessaging) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	s.batches = append(s.batches, m.Tokens)
	if s.err != nil {
		return nil, s.err
	}
	resp := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if err, ok := s.fail[tok]; ok {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: err})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return resp, nil
}

func TestNewWithoutCredentialsIsUnavailable(t *testing.T) {
	c, err := New(context.Background(), config.FirebaseConfig{})
	require.NoError(t, err)
	assert.False(t, c.Available())

	_, err = c.Send(context.Background(), Message{Tokens: []string{"a"}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSendChunksTokens(t *testing.T) {
	stub := &stubMessaging{}
	tokens := make([]string, 1201)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}

	res, err := newWithAPI(stub).Send(context.Background(), Message{Tokens: tokens, Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Len(t, stub.batches, 3)
	assert.Len(t, stub.batches[0], 500)
	assert.Len(t, stub.batches[2], 201)
	assert.Equal(t, 1201, res.Success)
	assert.Zero(t, res.Failure)
}

func TestSendTransientFailuresAreNotInvalid(t *testing.T) {
	stub := &stubMessaging{fail: map[string]error{"b": errors.New("unavailable")}}
	res, err := newWithAPI(stub).Send(context.Background(), Message{Tokens: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failure)
	assert.Empty(t, res.Invalid)
}

func TestSendOnlyDeadTokensAreInvalid(t *testing.T) {
	errUnregistered := errors.New("requested entity was not found")
	errBadToken := errors.New("the registration token is not a valid FCM registration token")
	errBadPayload := errors.New("invalid JSON payload received")

	restoreUnregistered, restoreInvalid := isUnregistered, isInvalidArgument
	t.Cleanup(func() { isUnregistered, isInvalidArgument = restoreUnregistered, restoreInvalid })
	isUnregistered = func(err error) bool { return errors.Is(err, errUnregistered) }
	isInvalidArgument = func(err error) bool { return errors.Is(err, errBadToken) || errors.Is(err, errBadPayload) }

	stub := &stubMessaging{fail: map[string]error{
		"gone":    errUnregistered,
		"garbled": errBadToken,
		"healthy": errBadPayload,
	}}
	res, err := newWithAPI(stub).Send(context.Background(), Message{Tokens: []string{"gone", "garbled", "healthy"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failure)
	assert.ElementsMatch(t, []string{"gone", "garbled"}, res.Invalid)
}

func TestSendBatchErrorCountsWholeBatch(t *testing.T) {
	stub := &stubMessaging{err: errors.New("deadline exceeded")}
	res, err := newWithAPI(stub).Send(context.Background(), Message{Tokens: []string{"a", "b", "c"}})
	require.Error(t, err)
	assert.Equal(t, 3, res.Failure)
}
