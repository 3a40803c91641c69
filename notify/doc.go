// Package notify provides dramauth.Notifier implementations.
//
// SMTPNotifier renders each notification into a plain-text message and
// delivers it over SMTP with go-mail. LogNotifier writes the rendered
// message to a zap logger and is meant for local development, where the
// link has to be copied from the console.
package notify
