package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"nutri-practice/internal/agent"
)

type fakeStreamer struct {
	chunks  []agent.Chunk
	err     error
	gotText string
	gotHist []agent.Turn
}

func (f *fakeStreamer) Chat(ctx context.Context, message string, history []agent.Turn) (<-chan agent.Chunk, error) {
	f.gotText = message
	f.gotHist = history
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan agent.Chunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func TestAccumulate_FoldsInOrder(t *testing.T) {
	ch := make(chan agent.Chunk, 3)
	ch <- agent.Chunk{Text: "Olá"}
	ch <- agent.Chunk{Text: ", "}
	ch <- agent.Chunk{Text: "tudo bem?"}
	close(ch)

	var updates []string
	got, err := Accumulate(context.Background(), ch, func(s string) { updates = append(updates, s) })
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if got != "Olá, tudo bem?" {
		t.Errorf("unexpected text %q", got)
	}
	want := []string{"Olá", "Olá, ", "Olá, tudo bem?"}
	if len(updates) != len(want) {
		t.Fatalf("expected %d updates, got %v", len(want), updates)
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Errorf("update %d = %q, want %q", i, updates[i], want[i])
		}
	}
}

func TestAccumulate_StopsOnChunkError(t *testing.T) {
	boom := errors.New("boom")
	ch := make(chan agent.Chunk, 2)
	ch <- agent.Chunk{Text: "parcial"}
	ch <- agent.Chunk{Err: boom}
	close(ch)

	got, err := Accumulate(context.Background(), ch, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got != "parcial" {
		t.Errorf("partial text lost: %q", got)
	}
}

func TestAccumulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan agent.Chunk)

	_, err := Accumulate(ctx, ch, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReply_PassesHistory(t *testing.T) {
	fs := &fakeStreamer{chunks: []agent.Chunk{{Text: "Sim."}}}
	svc := NewService(fs, zerolog.Nop())

	history := []Message{svc.Opening(), {Role: "user", Text: "Oi"}}
	msg, err := svc.Reply(context.Background(), history, "Posso comer pão?", nil)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if msg.Text != "Sim." || msg.Role != "model" || msg.ID == "" {
		t.Errorf("unexpected reply %+v", msg)
	}
	if fs.gotText != "Posso comer pão?" || len(fs.gotHist) != 2 || fs.gotHist[0].Text != Greeting {
		t.Errorf("history not forwarded: %q %+v", fs.gotText, fs.gotHist)
	}
}

func TestReply_ApologisesOnFailure(t *testing.T) {
	svc := NewService(&fakeStreamer{err: errors.New("down")}, zerolog.Nop())
	msg, err := svc.Reply(context.Background(), nil, "oi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if msg.Text != Apology {
		t.Errorf("expected apology, got %q", msg.Text)
	}

	svc = NewService(&fakeStreamer{chunks: []agent.Chunk{{Text: "meia"}, {Err: errors.New("cut")}}}, zerolog.Nop())
	msg, _ = svc.Reply(context.Background(), nil, "oi", nil)
	if msg.Text != Apology {
		t.Errorf("partial text should be replaced by the apology, got %q", msg.Text)
	}
}

func readEvents(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHandler_Send(t *testing.T) {
	svc := NewService(&fakeStreamer{chunks: []agent.Chunk{{Text: "Pode"}, {Text: " sim"}}}, zerolog.Nop())
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Posso?","history":[]}`))
	rec := httptest.NewRecorder()
	h.Send(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := readEvents(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	if events[0].Type != "message" || events[0].Data != "Pode" || events[1].Data != "Pode sim" {
		t.Errorf("unexpected message events %+v", events[:2])
	}
	if events[2].Type != "done" {
		t.Errorf("expected done, got %s", events[2].Type)
	}
}

func TestHandler_SendError(t *testing.T) {
	h := NewHandler(NewService(&fakeStreamer{err: errors.New("down")}, zerolog.Nop()))
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"oi"}`))
	rec := httptest.NewRecorder()
	h.Send(rec, req)

	events := readEvents(t, rec.Body.String())
	if len(events) != 1 || events[0].Type != "error" {
		t.Fatalf("expected one error event, got %+v", events)
	}
	data, _ := events[0].Data.(map[string]any)
	if data["text"] != Apology {
		t.Errorf("error event should carry the apology, got %v", events[0].Data)
	}
}

func TestHandler_RejectsEmpty(t *testing.T) {
	h := NewHandler(NewService(&fakeStreamer{}, zerolog.Nop()))
	rec := httptest.NewRecorder()
	h.Send(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
