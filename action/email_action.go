package action

import (
	"context"
	"fmt"

	"github.com/funnelkit/journey/logger"
	"go.uber.org/zap"
)

// EmailSender is the external collaborator that actually delivers mail.
type EmailSender interface {
	Send(ctx context.Context, to string, templateId string, data map[string]any) error
}

var _ Handler = new(sendEmailAction)

type sendEmailAction struct {
	sender EmailSender
}

func NewSendEmailAction(sender EmailSender) *sendEmailAction {
	return &sendEmailAction{sender: sender}
}

func (a *sendEmailAction) Name() string {
	return "send_email"
}

func (a *sendEmailAction) Execute(ctx context.Context, params map[string]any, entity map[string]any) (map[string]any, error) {
	to, _ := params["to"].(string)
	if len(to) == 0 {
		if email, ok := entity["email"].(string); ok {
			to = email
		}
	}
	if len(to) == 0 {
		return nil, Permanentf("send_email: no recipient address")
	}
	templateId, _ := params["templateId"].(string)
	if len(templateId) == 0 {
		return nil, Permanentf("send_email: no templateId")
	}
	if err := a.sender.Send(ctx, to, templateId, params); err != nil {
		return nil, fmt.Errorf("send_email: %w", err)
	}
	logger.Debug("email dispatched", zap.String("to", to), zap.String("template", templateId))
	return map[string]any{"to": to, "templateId": templateId}, nil
}

// LogEmailSender stands in when no real provider is configured.
type LogEmailSender struct{}

func (LogEmailSender) Send(ctx context.Context, to string, templateId string, data map[string]any) error {
	logger.Info("send email", zap.String("to", to), zap.String("template", templateId))
	return nil
}
