// Package chat answers questions from retrieved context and conversation history.
//
// A Responder retrieves the chunks most similar to the question, cuts each one
// to a fixed number of runes, loads the recent turns of the conversation and
// asks the language model for an answer. Only after generation succeeds are the
// question and the answer appended to the conversation, in a single call, so a
// failed generation leaves the history untouched.
package chat
