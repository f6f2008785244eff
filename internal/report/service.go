package report

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"nutri-practice/internal/record"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

type PDFRenderer interface {
	Render(rec record.PatientRecord) ([]byte, error)
}

// Service sends saved consultations to the nutritionist's Telegram chat.
type Service struct {
	renderer PDFRenderer
	tgClient TelegramClient
	chatID   int64
	log      zerolog.Logger
}

func NewService(renderer PDFRenderer, tg TelegramClient, chatID int64, log zerolog.Logger) *Service {
	return &Service{
		renderer: renderer,
		tgClient: tg,
		chatID:   chatID,
		log:      log.With().Str("component", "report").Logger(),
	}
}

func FileName(rec record.PatientRecord) string {
	return fmt.Sprintf("plano_%s_%s.pdf", rec.AccessCode, rec.Date.Format("20060102"))
}

// Deliver renders rec and sends it as a document. When the PDF cannot be
// built a plain summary message is sent instead.
func (s *Service) Deliver(ctx context.Context, rec record.PatientRecord) error {
	s.log.Info().Str("record_id", rec.ID).Msg("generating report")

	data, err := s.renderer.Render(rec)
	if err != nil {
		s.log.Warn().Err(err).Str("record_id", rec.ID).Msg("pdf unavailable, sending summary")
		return s.tgClient.SendMessage(ctx, s.chatID, summary(rec))
	}
	if err := s.tgClient.SendDocument(ctx, s.chatID, data, FileName(rec)); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	s.log.Info().Str("record_id", rec.ID).Int64("chat_id", s.chatID).Msg("report sent")
	return nil
}

func summary(rec record.PatientRecord) string {
	return fmt.Sprintf("Nova consulta salva\nPaciente: %s\nCódigo: %s\nMeta calórica: %s kcal\n%s",
		rec.Profile.Name, rec.AccessCode, num(rec.Stats.CaloriesTarget), rec.Stats.Analysis)
}
