// ABOUTME: Tailnet listeners for the gateway through an embedded tsnet node
// ABOUTME: Resolves state dir and auth key from config or environment before bringing the node up

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/parley/internal/config"
)

// Ports the gateway listens on inside the tailnet.
const (
	tailnetGRPCAddr = ":50051"
	tailnetHTTPAddr = ":80"
)

// errNoTailnetAuthKey is returned when neither config nor TS_AUTHKEY carry a key.
var errNoTailnetAuthKey = errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")

// tailnetStateDir picks where tsnet keeps node state. An explicit directory wins,
// then $XDG_DATA_HOME/parley/tailscale, then ~/.local/share/parley/tailscale.
func tailnetStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "parley", "tailscale"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating tailscale state dir (set tailscale.state_dir): %w", err)
	}
	return filepath.Join(home, ".local", "share", "parley", "tailscale"), nil
}

// tailnetAuthKey returns the configured key, falling back to TS_AUTHKEY.
func tailnetAuthKey(configured string) (string, error) {
	key := strings.TrimSpace(configured)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("TS_AUTHKEY"))
	}
	if key == "" {
		return "", errNoTailnetAuthKey
	}
	return key, nil
}

// newTailnetServer builds, but does not start, the tsnet node for cfg.
// tsnet's own chatter goes to logger at debug level.
func newTailnetServer(cfg config.TailscaleConfig, logger *slog.Logger) (*tsnet.Server, error) {
	dir, err := tailnetStateDir(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	key, err := tailnetAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	return &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       dir,
		AuthKey:   key,
		Ephemeral: cfg.Ephemeral,
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "tsnet")
		},
	}, nil
}

// tailnetIdentity extracts the node's first tailnet IP and MagicDNS name.
// Either may be empty while the node is still being assigned addresses.
func tailnetIdentity(status *ipnstate.Status) (ip, dnsName string) {
	if status == nil {
		return "", ""
	}
	if len(status.TailscaleIPs) > 0 {
		ip = status.TailscaleIPs[0].String()
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	return ip, dnsName
}

// setupTailscaleListeners joins the tailnet and opens the gRPC and HTTP listeners there.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	srv, err := newTailnetServer(tsCfg, g.logger)
	if err != nil {
		return nil, nil, err
	}
	g.tsnetServer = srv

	g.logger.Info("joining tailnet", "hostname", tsCfg.Hostname, "state_dir", srv.Dir, "ephemeral", tsCfg.Ephemeral)
	status, err := srv.Up(ctx)
	if err != nil {
		_ = srv.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}

	ip, dnsName := tailnetIdentity(status)
	if ip == "" {
		g.logger.Warn("tailnet node has no addresses yet", "hostname", tsCfg.Hostname)
	}
	g.logger.Info("tailnet node ready", "hostname", tsCfg.Hostname, "tailscale_ip", ip, "dns_name", dnsName)

	if grpcLn, err = srv.Listen("tcp", tailnetGRPCAddr); err != nil {
		_ = srv.Close()
		return nil, nil, fmt.Errorf("listening on tailnet %s: %w", tailnetGRPCAddr, err)
	}
	if httpLn, err = srv.Listen("tcp", tailnetHTTPAddr); err != nil {
		_ = grpcLn.Close()
		_ = srv.Close()
		return nil, nil, fmt.Errorf("listening on tailnet %s: %w", tailnetHTTPAddr, err)
	}
	return grpcLn, httpLn, nil
}
