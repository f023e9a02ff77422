package etcd

import (
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
)

// startEtcd runs a single member etcd in a temp dir for the duration of t.
func startEtcd(t *testing.T) *clientv3.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("embedded etcd is skipped in short mode")
	}

	cfg := embed.NewConfig()
	cfg.Dir = t.TempDir()
	cfg.LogLevel = "error"

	clientURL := localURL(t)
	peerURL := localURL(t)
	cfg.ListenClientUrls = []url.URL{clientURL}
	cfg.AdvertiseClientUrls = []url.URL{clientURL}
	cfg.ListenPeerUrls = []url.URL{peerURL}
	cfg.AdvertisePeerUrls = []url.URL{peerURL}
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)

	server, err := embed.StartEtcd(cfg)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	select {
	case <-server.Server.ReadyNotify():
	case err = <-server.Err():
		t.Fatalf("etcd failed to start: %v", err)
	case <-time.After(10 * time.Second):
		server.Server.Stop()
		t.Fatal("etcd took too long to start")
	}

	clnt, err := NewClient([]string{clientURL.String()}, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clnt.Close() })
	return clnt
}

func localURL(t *testing.T) url.URL {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", port)}
}
