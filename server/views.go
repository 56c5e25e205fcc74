package server

import (
	"time"

	"github.com/poiesic/pagewise/chat"
	"github.com/poiesic/pagewise/core"
)

type chatRequest struct {
	ConversationID string   `json:"conversation_id"`
	Question       string   `json:"question"`
	TopK           int      `json:"top_k,omitempty"`
	Labels         []string `json:"labels,omitempty"`
}

type embeddingRequest struct {
	NodeID       string            `json:"node_id"`
	Text         string            `json:"text"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Labels       []string          `json:"labels,omitempty"`
	DocumentType string            `json:"document_type,omitempty"`
}

type embeddingResponse struct {
	Status  string `json:"status"`
	NodeID  string `json:"node_id"`
	Chunks  int    `json:"chunks"`
	Records int    `json:"records"`
}

type queryRequest struct {
	Query  string   `json:"query"`
	TopK   int      `json:"top_k,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type hitView struct {
	NodeID   string            `json:"node_id"`
	Score    float32           `json:"score"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

type queryResponse struct {
	TopK      int       `json:"top_k"`
	TotalHits int       `json:"total_hits"`
	Results   []hitView `json:"results"`
}

type sourceView struct {
	NodeID     string  `json:"node_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
}

type chatResponse struct {
	ConversationID string       `json:"conversation_id"`
	Answer         string       `json:"answer"`
	Sources        []sourceView `json:"sources"`
}

type turnView struct {
	Index     int64     `json:"index"`
	Role      core.Role `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	ConversationID string     `json:"conversation_id"`
	Turns          []turnView `json:"turns"`
}

type webhookResponse struct {
	Status string `json:"status"`
	PageID string `json:"page_id,omitempty"`
	Event  string `json:"event,omitempty"`
}

func newChatResponse(conversationID string, answer *chat.Answer) chatResponse {
	resp := chatResponse{
		ConversationID: conversationID,
		Answer:         answer.Text,
		Sources:        make([]sourceView, 0, len(answer.Sources)),
	}
	for _, src := range answer.Sources {
		resp.Sources = append(resp.Sources, sourceView{
			NodeID:     src.Record.NodeID,
			DocumentID: src.Record.DocumentID,
			Title:      src.Record.Metadata[core.MetaTitle],
			URL:        src.Record.Metadata[core.MetaSourceURL],
			Score:      src.Score,
			Text:       src.Record.Text,
		})
	}
	return resp
}

func newQueryResponse(topK int, results []*core.SearchResult) queryResponse {
	resp := queryResponse{TopK: topK, TotalHits: len(results), Results: make([]hitView, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, hitView{
			NodeID:   r.Record.NodeID,
			Score:    r.Score,
			Text:     r.Record.Text,
			Metadata: r.Record.Metadata,
		})
	}
	return resp
}

func newHistoryResponse(conversationID string, turns []*core.ConversationTurn) historyResponse {
	resp := historyResponse{ConversationID: conversationID, Turns: make([]turnView, 0, len(turns))}
	for _, turn := range turns {
		resp.Turns = append(resp.Turns, turnView{
			Index:     turn.Index,
			Role:      turn.Role,
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		})
	}
	return resp
}
