package resolver_test

import (
	"os"
	"testing"

	"github.com/sheetbridge/persistence/util/testutil"
)

var RedisTestServer *testutil.RedisServer

func TestMain(m *testing.M) {
	RedisTestServer = testutil.NewRedisServer()
	exitCode := m.Run()
	RedisTestServer.Close()
	os.Exit(exitCode)
}
