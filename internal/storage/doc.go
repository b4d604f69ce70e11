// Package storage provides a minimal persistence layer used by the bot.
//
// It currently supports:
//   - Notification history appends (backing the /recent command)
//   - The quiet-hours pending queue (notifications parked until the window ends)
//
// The poll cursor and the dedup value are deliberately NOT stored here;
// both reset on process start.
package storage
