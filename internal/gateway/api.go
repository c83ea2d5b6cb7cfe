// ABOUTME: Read-only HTTP API over identities, presence and stored conversations
// ABOUTME: Serves JSON listings and a Markdown-rendered HTML transcript per identity pair

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/parley/internal/store"
)

// UsersResponse is the JSON response for GET /api/users.
// It carries the same sets as the users frame sent over WebSocket.
type UsersResponse struct {
	All    []string `json:"all"`
	Online []string `json:"online"`
}

// ConversationResponse describes one conversation in GET /api/conversations.
type ConversationResponse struct {
	ID        string `json:"id"`
	With      string `json:"with"`
	Online    bool   `json:"online"`
	Messages  int    `json:"messages"`
	CreatedAt string `json:"created_at"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Identity      string                 `json:"identity"`
	Conversations []ConversationResponse `json:"conversations"`
}

// handleListUsers handles GET /api/users requests.
func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	frame, err := g.broadcaster.UsersFrame(r.Context())
	if err != nil {
		g.logger.Error("failed to list users", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(UsersResponse{All: frame.All, Online: frame.Online})
}

// handleListConversations handles GET /api/conversations?identity=X requests.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity := r.URL.Query().Get("identity")
	if identity == "" {
		g.sendJSONError(w, http.StatusBadRequest, "identity is required")
		return
	}

	convs, err := g.store.ListConversations(r.Context(), identity)
	if err != nil {
		g.logger.Error("failed to list conversations", "identity", identity, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListConversationsResponse{
		Identity:      identity,
		Conversations: make([]ConversationResponse, 0, len(convs)),
	}
	for _, conv := range convs {
		msgs, err := g.store.ListMessages(r.Context(), conv.ID)
		if err != nil {
			g.logger.Error("failed to count messages", "conversation_id", conv.ID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		other := conv.Other(identity)
		_, online := g.presence.Get(other)
		response.Conversations = append(response.Conversations, ConversationResponse{
			ID:        conv.ID,
			With:      other,
			Online:    online,
			Messages:  len(msgs),
			CreatedAt: conv.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// transcriptTemplate renders a conversation as a standalone HTML page.
var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.A}} &amp; {{.B}}</title>
</head>
<body>
<h1>{{.A}} &amp; {{.B}}</h1>
{{range .Messages}}<div class="message">
<p class="meta"><strong>{{.From}}</strong> <time>{{.Date}} {{.Time}}</time></p>
<div class="text">{{.HTML}}</div>
</div>
{{else}}<p>No messages yet.</p>
{{end}}</body>
</html>
`))

// transcriptMessage is one rendered message in the transcript template.
type transcriptMessage struct {
	From string
	Date string
	Time string
	HTML template.HTML
}

// handleTranscript handles GET /api/conversations/transcript?a=X&b=Y requests.
// Message text is rendered as Markdown; goldmark drops raw HTML by default.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		g.sendJSONError(w, http.StatusBadRequest, "a and b are required")
		return
	}

	conv, err := g.store.GetConversation(r.Context(), a, b)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	msgs, err := g.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		g.logger.Error("failed to get messages", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	rendered := make([]transcriptMessage, 0, len(msgs))
	for _, msg := range msgs {
		rendered = append(rendered, transcriptMessage{
			From: msg.From,
			Date: msg.Date,
			Time: msg.Time,
			HTML: g.renderMarkdown(msg.Text),
		})
	}

	data := struct {
		A, B     string
		Messages []transcriptMessage
	}{
		A:        conv.Participants[0],
		B:        conv.Participants[1],
		Messages: rendered,
	}

	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, data); err != nil {
		g.logger.Error("failed to render transcript", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// renderMarkdown converts message text to HTML, escaping it on failure.
func (g *Gateway) renderMarkdown(text string) template.HTML {
	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &htmlBuf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		return template.HTML("<p>" + template.HTMLEscapeString(text) + "</p>")
	}
	return template.HTML(htmlBuf.String())
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
