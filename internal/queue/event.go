// Package queue defines the mail jobs exchanged over the message broker
// and the background consumer that delivers them.
package queue

// MailQueueName is the durable queue mail jobs travel through.
const MailQueueName = "mail.send"

// MailKind selects the template the consumer renders.
type MailKind string

const (
	// MailPasswordReset carries a reset/activation link.
	MailPasswordReset MailKind = "password_reset"
	// MailPasswordChanged confirms a completed password reset.
	MailPasswordChanged MailKind = "password_changed"
)

// MailJob is published when a request needs an email sent without blocking
// the HTTP response on SMTP I/O.
type MailJob struct {
	Kind       MailKind `json:"kind"`
	To         string   `json:"to"`
	Name       string   `json:"name"`
	Link       string   `json:"link"`
	EnqueuedAt string   `json:"enqueued_at"`
}
