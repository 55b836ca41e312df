package main

import (
	"context"
	"time"
)

func getContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// logFormat keeps JSON logs everywhere except local development
func logFormat(env string) string {
	if env == "development" {
		return "text"
	}
	return "json"
}
