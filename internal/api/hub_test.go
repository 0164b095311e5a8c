package api

import (
	"context"
	"testing"
	"time"
)

func TestHubStopReleasesClients(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	live := &wsClient{hub: h, send: make(chan []byte, 1)}
	if !h.join(live) {
		t.Fatal("join on a running hub failed")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if _, ok := <-live.send; ok {
		t.Error("send channel still open after stop")
	}

	returned := make(chan bool, 1)
	go func() {
		h.leave(live)
		returned <- h.join(&wsClient{hub: h, send: make(chan []byte, 1)})
	}()
	select {
	case ok := <-returned:
		if ok {
			t.Error("join succeeded on a stopped hub")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leave or join blocked after the hub stopped")
	}
}
