package service

import (
	"context"
)

// DefaultGreeting is the body served by the base handler.
const DefaultGreeting = "Hello, welcome to the web server"

// Greeting returns the base handler: it answers every request with a fixed
// plain-text body.
func Greeting(body string) Handler {
	if body == "" {
		body = DefaultGreeting
	}
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return Text(body), nil
	})
}
