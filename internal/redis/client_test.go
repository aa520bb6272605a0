package redisclient

import (
	"testing"
	"time"
)

func TestClientOptions(t *testing.T) {
	cases := []struct {
		name     string
		in       ClientOptions
		timeout  time.Duration
		poolSize int
	}{
		{"defaults", ClientOptions{Addr: "localhost:6379"}, 2 * time.Second, 0},
		{"short lock wait", ClientOptions{Addr: "localhost:6379", LockWait: time.Second, PoolSize: 32}, 500 * time.Millisecond, 32},
		{"long lock wait", ClientOptions{Addr: "localhost:6379", LockWait: 10 * time.Second}, 2 * time.Second, 0},
	}
	for _, tc := range cases {
		got := clientOptions(tc.in)
		if got.ReadTimeout != tc.timeout || got.WriteTimeout != tc.timeout {
			t.Errorf("%s: timeouts = %s/%s, want %s", tc.name, got.ReadTimeout, got.WriteTimeout, tc.timeout)
		}
		if got.PoolSize != tc.poolSize {
			t.Errorf("%s: pool size = %d, want %d", tc.name, got.PoolSize, tc.poolSize)
		}
	}
}
