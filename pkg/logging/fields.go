package logging

import "log/slog"

// Domain identifiers

func User(id string) slog.Attr {
	return slog.String("user_id", id)
}

func Receiver(id string) slog.Attr {
	return slog.String("receiver_id", id)
}

func Conn(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func Message(id string) slog.Attr {
	return slog.String("message_id", id)
}

func Correlation(id string) slog.Attr {
	return slog.String("client_correlation_id", id)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Room(id string) slog.Attr {
	return slog.String("room_id", id)
}

// Request / tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
