package provider

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
)

func TestServiceErrorMessage(t *testing.T) {
	err := Errorf("flickr", "search", 500, "boom")
	if got := err.Error(); got != "flickr search failed (HTTP 500): boom" {
		t.Errorf("Error() = %q", got)
	}

	err = &ServiceError{Service: "clarifai", Op: "token", Err: io.ErrUnexpectedEOF}
	if !strings.Contains(err.Error(), "clarifai token failed") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ServiceError should unwrap to its cause")
	}
}

func TestServiceErrorTransient(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want bool
	}{
		{"server error", &ServiceError{StatusCode: 503, Err: errors.New("x")}, true},
		{"rate limited", &ServiceError{StatusCode: 429, Err: errors.New("x")}, true},
		{"bad request", &ServiceError{StatusCode: 400, Err: errors.New("x")}, false},
		{"network", &ServiceError{Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, true},
		{"decode", &ServiceError{StatusCode: 200, Err: io.ErrUnexpectedEOF}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Transient(); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceErrorAs(t *testing.T) {
	var wrapped error = Errorf("download", "get", 404, "not found")
	wrapped = errors.Join(errors.New("fetch photo"), wrapped)

	var se *ServiceError
	if !errors.As(wrapped, &se) {
		t.Fatal("errors.As should find the ServiceError")
	}
	if se.Service != "download" || se.StatusCode != 404 {
		t.Errorf("got %+v", se)
	}
}
