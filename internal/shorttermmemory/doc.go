// Package shorttermmemory keeps the conversation of one extraction and the token usage
// it accrued across attempts.
//
// The conversation starts with the mode instructions and the caller's messages. Every
// failed attempt forks it, appends the rejected reply and the corrective feedback, and
// joins the fork back, so the next request carries the whole history in send order.
package shorttermmemory
