package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/logging"
)

var ErrNoRecipient = errors.New("doctor chat id is not configured")

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

// Publisher delivers finished reports to a clinician's Telegram chat as a
// short notice followed by the PDF.
type Publisher struct {
	tgClient     TelegramClient
	renderer     consultation.PDFRenderer
	doctorChatID int64
	log          zerolog.Logger
}

var _ consultation.ReportPublisher = (*Publisher)(nil)

func NewPublisher(tg TelegramClient, renderer consultation.PDFRenderer, doctorChatID int64) *Publisher {
	return &Publisher{
		tgClient:     tg,
		renderer:     renderer,
		doctorChatID: doctorChatID,
		log:          logging.Component("report"),
	}
}

func (p *Publisher) Publish(ctx context.Context, r consultation.Report) error {
	if p.doctorChatID == 0 {
		return ErrNoRecipient
	}

	data, err := p.renderer.RenderPDF(r)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := p.tgClient.SendMessage(ctx, p.doctorChatID, notice(r)); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}

	fileName := fmt.Sprintf("report_%s.pdf", r.SessionID)
	if err := p.tgClient.SendDocument(ctx, p.doctorChatID, data, fileName); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	p.log.Info().Ctx(ctx).
		Str("session_id", r.SessionID.String()).
		Int64("chat_id", p.doctorChatID).
		Int("bytes", len(data)).
		Msg("report delivered")
	return nil
}

func notice(r consultation.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New intake report: %s\n", r.Title)
	fmt.Fprintf(&sb, "Patient ID: %s\n", r.UserID)
	fmt.Fprintf(&sb, "Completeness: %d/100\n", r.Score)
	if len(r.CollectedData.Symptoms) > 0 {
		fmt.Fprintf(&sb, "Symptoms: %s\n", strings.Join(r.CollectedData.Symptoms, ", "))
	}
	if s := r.Sections.ExecutiveSummary; s != "" {
		sb.WriteString("\n")
		sb.WriteString(s)
	}
	return sb.String()
}
