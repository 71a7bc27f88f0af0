// Package s3test provides an in-memory S3 endpoint that understands the
// subset of the API coalmine uses: conditional PutObject and GetObject.
package s3test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Server stores objects in memory, keyed by "bucket/key".
type Server struct {
	// LoseFirstPut makes the first PutObject store the object and then
	// answer 500, as if the reply was lost after S3 committed the write.
	LoseFirstPut bool

	srv     *httptest.Server
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

// NewServer starts a server that is closed with t.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{objects: make(map[string][]byte)}
	s.srv = httptest.NewServer(s)
	t.Cleanup(s.srv.Close)
	return s
}

// Client returns an S3 client for the server with the SDK's default retryer.
func (s *Server) Client() *s3.Client {
	return s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(s.srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

// Puts returns how many PutObject requests reached the server.
func (s *Server) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Objects returns how many objects are stored.
func (s *Server) Objects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Object returns the stored body of bucket/key.
func (s *Server) Object(bucket, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	return string(b), ok
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		s.puts++
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		if _, exists := s.objects[name]; exists && r.Header.Get("If-None-Match") == "*" {
			writeError(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		s.objects[name] = body
		if s.LoseFirstPut && s.puts == 1 {
			writeError(w, http.StatusInternalServerError, "InternalError")
			return
		}
		w.Header().Set("ETag", fmt.Sprintf(`"%x"`, len(body)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := s.objects[name]
		if !ok {
			writeError(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write(body)
	default:
		writeError(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>%s</Code><Message>%s</Message><RequestId>s3test</RequestId></Error>`, code, code)
}
