package sink

import (
	"context"
	"fmt"
	"time"
)

type Status int

const (
	StatusDelivered Status = iota
	StatusRejected
	StatusTransportError
	StatusNoContent
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusRejected:
		return "rejected"
	case StatusTransportError:
		return "transport_error"
	default:
		return "no_content"
	}
}

// Outcome is the result of one send. Code carries the sink's status code when known.
type Outcome struct {
	Status Status
	Code   int
	Err    error
}

func (o Outcome) Delivered() bool {
	return o.Status == StatusDelivered
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s (%d): %v", o.Status, o.Code, o.Err)
	}
	return o.Status.String()
}

func Delivered() Outcome { return Outcome{Status: StatusDelivered} }

func NoContent() Outcome { return Outcome{Status: StatusNoContent} }

func Rejected(code int, err error) Outcome {
	return Outcome{Status: StatusRejected, Code: code, Err: err}
}

func TransportError(err error) Outcome {
	return Outcome{Status: StatusTransportError, Err: err}
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	URL         string
	Footer      string
	Timestamp   time.Time
	Color       int
	// ImageFile names an attached file shown as the embed image.
	ImageFile string
	Fields    []Field
}

// File is an attachment read from disk at send time.
type File struct {
	Name        string
	ContentType string
	Path        string
}

type Message struct {
	Target    string
	Username  string
	AvatarURL string
	Embed     *Embed
	Files     []File
}

func (m Message) Empty() bool {
	return m.Embed == nil && len(m.Files) == 0
}

//go:generate go run go.uber.org/mock/mockgen -source=sink.go -destination=mocks/mock.go
type Sink interface {
	Send(ctx context.Context, msg Message) Outcome
}
