package testutil

import (
	"net/http/httptest"
	"strings"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/sheetbridge/persistence/constants"
)

// S3Server is an in-process S3-compatible server with every bucket
// the persistence layer uses already created. It also serves objects
// anonymously at <URL>/<bucket>/<key>, so it can stand in for the
// public URL endpoint too.
type S3Server struct {
	server *httptest.Server
	URL    string
}

func NewS3Server() *S3Server {
	backend := s3mem.New()
	for _, bucket := range constants.Buckets {
		if err := backend.CreateBucket(bucket); err != nil {
			panic(err)
		}
	}
	faker := gofakes3.New(backend)
	server := httptest.NewServer(faker.Server())
	return &S3Server{
		server: server,
		URL:    server.URL,
	}
}

// Host returns host:port, which is what the minio client wants.
func (s *S3Server) Host() string {
	return strings.TrimPrefix(s.URL, "http://")
}

func (s *S3Server) Close() {
	s.server.Close()
}
