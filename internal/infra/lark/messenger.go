package lark

import (
	"context"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	jsonx "nudge/internal/shared/json"
	"nudge/internal/shared/logging"
)

// Messenger sends plain-text messages to Lark chats.
type Messenger struct {
	client *lark.Client
	logger logging.Logger
}

// NewMessenger creates a Messenger over an SDK client.
func NewMessenger(client *lark.Client, logger logging.Logger) *Messenger {
	return &Messenger{
		client: client,
		logger: logging.OrNop(logger),
	}
}

// Send posts text to the chat identified by chatID.
func (m *Messenger) Send(ctx context.Context, chatID, text string) error {
	if m.client == nil {
		return fmt.Errorf("lark client not initialized")
	}

	content, err := jsonx.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal text content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("lark send: %w", err)
	}
	if !resp.Success() {
		return &APIError{Code: resp.Code, Msg: resp.Msg}
	}

	m.logger.Debug("Lark: sent message to %s", chatID)
	return nil
}
