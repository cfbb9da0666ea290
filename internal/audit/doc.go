// Package audit delivers authentication events off the request path.
//
// The engine builds an Event for each security-relevant outcome and hands it
// to a Dispatcher, which queues it and forwards it to a Sink from a single
// goroutine. Sinks provided here write to a channel, a JSON stream, a logrus
// logger, or several sinks at once.
//
// Events never carry passwords, hashes, TOTP secrets, or tokens.
package audit
