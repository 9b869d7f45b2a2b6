package transport

import "context"

// Client attempts delivery of content to a destination phone number.
// A nil error means the message was handed off; the error string is
// otherwise the failure reason recorded on the message. Retry, auth and
// connection management are entirely the implementation's concern.
type Client interface {
	Send(ctx context.Context, phone, content string) (remoteMessageID string, err error)
}
