package testutil

import (
	"github.com/alicebob/miniredis/v2"
)

// RedisServer is an in-process Redis for tests that need a mapping
// store.
type RedisServer struct {
	server *miniredis.Miniredis
}

func NewRedisServer() *RedisServer {
	server, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	return &RedisServer{
		server: server,
	}
}

func (s *RedisServer) Addr() string {
	return s.server.Addr()
}

// FlushAll removes every key, so tests sharing a server start clean.
func (s *RedisServer) FlushAll() {
	s.server.FlushAll()
}

// HGet reads a hash field directly, bypassing the client under test.
func (s *RedisServer) HGet(key, field string) string {
	return s.server.HGet(key, field)
}

func (s *RedisServer) Close() {
	s.server.Close()
}
