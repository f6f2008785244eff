package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nutri-practice/internal/agent"
)

const (
	Greeting = "Olá! Sou o assistente virtual do consultório. Como posso ajudar com suas dúvidas sobre nutrição hoje?"
	Apology  = "Desculpe, tive um problema ao processar sua pergunta. Tente novamente."
)

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "model"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Streamer starts a streamed assistant reply.
type Streamer interface {
	Chat(ctx context.Context, message string, history []agent.Turn) (<-chan agent.Chunk, error)
}

// Accumulate folds chunks, in arrival order, into one message buffer and
// calls onUpdate with the whole buffer after every chunk. It stops when the
// stream closes, a chunk carries an error, or ctx is cancelled; the text
// gathered so far is returned in every case.
func Accumulate(ctx context.Context, chunks <-chan agent.Chunk, onUpdate func(text string)) (string, error) {
	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return buf.String(), ctx.Err()
		case ch, ok := <-chunks:
			if !ok {
				return buf.String(), nil
			}
			if ch.Err != nil {
				return buf.String(), ch.Err
			}
			if ch.Text == "" {
				continue
			}
			buf.WriteString(ch.Text)
			if onUpdate != nil {
				onUpdate(buf.String())
			}
		}
	}
}

type Service struct {
	streamer Streamer
	log      zerolog.Logger
}

func NewService(streamer Streamer, log zerolog.Logger) *Service {
	return &Service{streamer: streamer, log: log.With().Str("component", "chat").Logger()}
}

// Opening returns the conversation's first message.
func (s *Service) Opening() Message {
	return Message{ID: uuid.NewString(), Role: "model", Text: Greeting, Timestamp: time.Now()}
}

// Reply streams the assistant's answer to text. When the stream fails the
// returned message is the apology and err is set; partial text is dropped.
func (s *Service) Reply(ctx context.Context, history []Message, text string, onUpdate func(string)) (Message, error) {
	turns := make([]agent.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, agent.Turn{Role: m.Role, Text: m.Text})
	}

	reply := Message{ID: uuid.NewString(), Role: "model", Timestamp: time.Now()}

	chunks, err := s.streamer.Chat(ctx, text, turns)
	if err != nil {
		s.log.Error().Err(err).Msg("starting chat stream failed")
		reply.Text = Apology
		return reply, err
	}
	full, err := Accumulate(ctx, chunks, onUpdate)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			reply.Text = full
			return reply, err
		}
		s.log.Error().Err(err).Msg("chat stream failed")
		reply.Text = Apology
		return reply, err
	}
	reply.Text = full
	return reply, nil
}
