// Package services provides external service integrations and technical concerns like message delivery and cooldown tracking
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pegahdev/hermes/config"
	"github.com/pegahdev/hermes/models"
)

// MessengerService is the external Send API client. Every error is treated as
// retryable by callers unless it is a PermanentSendError (explicit platform
// rejection).
type MessengerService interface {
	Send(ctx context.Context, pageAccessToken, recipientPSID string, payload *models.MessagePayload) (*SendResult, error)
}

// SendResult holds the platform acknowledgment of an accepted message
type SendResult struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
}

// PermanentSendError marks a platform policy rejection that must not be retried
type PermanentSendError struct {
	Code    int
	Subcode int
	Message string
}

func (e *PermanentSendError) Error() string {
	return fmt.Sprintf("send rejected by platform (code=%d, subcode=%d): %s", e.Code, e.Subcode, e.Message)
}

// IsPermanentSendError reports whether err is an explicit platform rejection
func IsPermanentSendError(err error) bool {
	var pe *PermanentSendError
	return errors.As(err, &pe)
}

// Platform error codes that indicate the recipient can never receive this
// message: blocked page, deleted user, messaging permission revoked.
var permanentErrorCodes = map[int]bool{
	10:   true, // permission denied
	200:  true, // permission error
	551:  true, // user unavailable
	2018: true, // messaging feature rejection
}

// MessengerServiceImpl implements MessengerService against the Graph Send API
type MessengerServiceImpl struct {
	config *config.MessengerConfig
	client *http.Client
}

// NewMessengerService creates a new Send API client
func NewMessengerService(cfg *config.MessengerConfig) MessengerService {
	return &MessengerServiceImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.SendTimeout,
		},
	}
}

type sendAPIRequest struct {
	Recipient     sendAPIRecipient `json:"recipient"`
	Message       json.RawMessage  `json:"message"`
	MessagingType string           `json:"messaging_type"`
	Tag           string           `json:"tag,omitempty"`
}

type sendAPIRecipient struct {
	ID string `json:"id"`
}

type sendAPIResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
	Error       *struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error,omitempty"`
}

// Send delivers one message through the platform Send API
func (s *MessengerServiceImpl) Send(ctx context.Context, pageAccessToken, recipientPSID string, payload *models.MessagePayload) (*SendResult, error) {
	message, err := buildMessageBody(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build message body: %w", err)
	}

	apiReq := sendAPIRequest{
		Recipient:     sendAPIRecipient{ID: recipientPSID},
		Message:       message,
		MessagingType: messagingType(payload),
	}
	if payload.MessageTag != nil {
		apiReq.Tag = string(*payload.MessageTag)
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("https://%s/%s/me/messages?access_token=%s", s.config.APIDomain, s.config.APIVersion, pageAccessToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call send API: %w", err)
	}
	defer resp.Body.Close()

	var result sendAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode send API response: %w", err)
	}

	if result.Error != nil {
		if permanentErrorCodes[result.Error.Code] {
			return nil, &PermanentSendError{
				Code:    result.Error.Code,
				Subcode: result.Error.ErrorSubcode,
				Message: result.Error.Message,
			}
		}
		return nil, fmt.Errorf("send API error (code=%d): %s", result.Error.Code, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send API returned status %d", resp.StatusCode)
	}

	return &SendResult{MessageID: result.MessageID, RecipientID: result.RecipientID}, nil
}

func messagingType(payload *models.MessagePayload) string {
	if payload.MessageTag != nil {
		return "MESSAGE_TAG"
	}
	return "RESPONSE"
}

func buildMessageBody(payload *models.MessagePayload) (json.RawMessage, error) {
	switch payload.Kind {
	case models.MessageKindText:
		return json.Marshal(map[string]any{"text": payload.Text})
	case models.MessageKindAttachment:
		return json.Marshal(map[string]any{
			"attachment": map[string]any{
				"type":    payload.AttachmentType,
				"payload": map[string]any{"url": payload.AttachmentURL, "is_reusable": true},
			},
		})
	case models.MessageKindTemplate:
		return json.Marshal(map[string]any{
			"attachment": map[string]any{
				"type": "template",
				"payload": map[string]any{
					"template_type": payload.TemplateName,
					"elements":      payload.TemplateParams,
				},
			},
		})
	case models.MessageKindQuickReplies:
		replies := make([]map[string]any, 0, len(payload.QuickReplies))
		for _, qr := range payload.QuickReplies {
			replies = append(replies, map[string]any{
				"content_type": "text",
				"title":        qr.Title,
				"payload":      qr.Payload,
			})
		}
		return json.Marshal(map[string]any{"text": payload.Text, "quick_replies": replies})
	default:
		return nil, fmt.Errorf("unknown message kind: %s", payload.Kind)
	}
}

// MockMessengerService implements MessengerService for testing
type MockMessengerService struct {
	mu        sync.Mutex
	Sent      []MockSend
	FailWith  error
	FailTimes int
	nextID    int
}

// MockSend records one delivery attempt made through the mock
type MockSend struct {
	PageAccessToken string
	RecipientPSID   string
	Payload         models.MessagePayload
}

func NewMockMessengerService() *MockMessengerService {
	return &MockMessengerService{}
}

func (m *MockMessengerService) Send(ctx context.Context, pageAccessToken, recipientPSID string, payload *models.MessagePayload) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sent = append(m.Sent, MockSend{
		PageAccessToken: pageAccessToken,
		RecipientPSID:   recipientPSID,
		Payload:         *payload,
	})

	// FailTimes == 0 fails every send while FailWith is set; FailTimes = N
	// fails the first N sends, then succeeds.
	if m.FailWith != nil {
		err := m.FailWith
		if m.FailTimes > 0 {
			m.FailTimes--
			if m.FailTimes == 0 {
				m.FailWith = nil
			}
		}
		return nil, err
	}

	m.nextID++
	return &SendResult{
		MessageID:   fmt.Sprintf("mid.mock.%d", m.nextID),
		RecipientID: recipientPSID,
	}, nil
}

// SentCount returns the number of delivery attempts recorded by the mock
func (m *MockMessengerService) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
