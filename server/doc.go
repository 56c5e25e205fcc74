// Package server exposes the webhook, ingestion, retrieval, chat and history
// endpoints over HTTP.
//
// Routes:
//
//	POST   /webhook/confluence      queue a page for ingestion (202)
//	POST   /embeddings/create       index supplied text under a caller id
//	POST   /retriever/query         ranked chunks for a query, no answer
//	POST   /chat                    answer a question in a conversation
//	GET    /history/:conversation   recent turns, oldest first
//	DELETE /history/:conversation   forget a conversation
//	GET    /healthz                 liveness and queue depth
//	GET    /metrics                 Prometheus exposition
package server
