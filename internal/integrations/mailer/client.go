package mailer

import "context"

type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Plain   string
	HTML    string
}

type Client interface {
	Send(ctx context.Context, msg Message) error
}
