// Command swim runs a standalone membership agent: it binds a
// UDP+TCP transport, joins an existing cluster (or starts one), and
// logs every membership event until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/it-chain/iLogger"
	"github.com/rs/xid"
	"github.com/urfave/cli"

	"github.com/lifeguard-swim/swim"
	"github.com/lifeguard-swim/swim/broadcast"
	"github.com/lifeguard-swim/swim/wire"
)

func main() {
	app := cli.NewApp()
	app.Name = "swim"
	app.Usage = "run a SWIM membership agent"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "bind", Value: "127.0.0.1:7946", Usage: "bind address for both probe (UDP) and sync (TCP) traffic"},
		cli.StringFlag{Name: "advertise", Usage: "address advertised to peers (defaults to --bind)"},
		cli.StringFlag{Name: "join", Usage: "comma-separated seed addresses to join"},
		cli.StringFlag{Name: "profile", Value: "lan", Usage: "timing profile: lan, wan or loopback"},
		cli.StringFlag{Name: "metadata", Usage: "opaque metadata string rendered as base58 in logs"},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		iLogger.Error(nil, err.Error())
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	bind := swim.Addr(c.String("bind"))
	advertise := bind
	if v := c.String("advertise"); v != "" {
		advertise = swim.Addr(v)
	}

	cfg := profileConfig(c.String("profile"))
	cfg.Node.BindAddr = bind
	cfg.Node.AdvertiseAddr = advertise
	cfg.Node.State.Metadata = []byte(c.String("metadata"))

	instanceID := xid.New().String()
	iLogger.Info(nil, fmt.Sprintf("swim: starting instance %s at %s (advertising %s)", instanceID, bind, advertise))

	transport, err := wire.NewTransport(bind, advertise, cfg.IO.InBufferSize, cfg.IO.OutBufferSize)
	if err != nil {
		return fmt.Errorf("bind transport: %w", err)
	}
	defer transport.Close()

	var engine *swim.Engine
	queue := broadcast.NewQueue(cfg.Broadcast.Multiplier, func() int {
		if engine == nil {
			return 1
		}
		return engine.ClusterSize()
	})

	events := &loggingEvents{instanceID: instanceID}
	engine = swim.NewEngine(cfg, transport, queue, events)

	transport.SetSnapshotSource(engine.RequestMembership)

	ctx, cancel := context.WithCancel(context.Background())

	if seeds := c.String("join"); seeds != "" {
		var addrs []swim.Addr
		for _, addr := range strings.Split(seeds, ",") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			addrs = append(addrs, swim.Addr(addr))
		}
		if len(addrs) > 0 {
			if err := engine.Join(ctx, addrs); err != nil {
				iLogger.Warn(nil, fmt.Sprintf("swim: join failed, starting solo: %v", err))
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		engine.Leave()
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	return engine.Run(ctx)
}

func profileConfig(name string) swim.Config {
	switch strings.ToLower(name) {
	case "wan":
		return swim.DefaultWANConfig()
	case "loopback":
		return swim.DefaultLoopbackConfig()
	default:
		return swim.DefaultLANConfig()
	}
}

// loggingEvents logs node changes, removals, self-suspicion,
// self-death declarations and sync failures via iLogger, rendering
// metadata as base58 rather than as a raw byte dump. Every other
// observer callback is the embedded NullEventHandler's no-op.
type loggingEvents struct {
	swim.NullEventHandler
	instanceID string
}

func (l *loggingEvents) NodeChanged(node swim.Node, cause swim.Cause) {
	iLogger.Info(nil, fmt.Sprintf("swim[%s]: node %s -> %s (meta=%s)", l.instanceID, node.Addr, node.State, renderMetadata(node.Metadata)))
}

func (l *loggingEvents) Removed(node swim.Node) {
	iLogger.Info(nil, fmt.Sprintf("swim[%s]: reclaimed %s", l.instanceID, node.Addr))
}

func (l *loggingEvents) Suspected(suspector swim.Addr) {
	iLogger.Warn(nil, fmt.Sprintf("swim[%s]: suspected by %s, refuting", l.instanceID, suspector))
}

func (l *loggingEvents) DeclaredDead(declaredBy swim.Addr) {
	iLogger.Warn(nil, fmt.Sprintf("swim[%s]: declared dead by %s, refuting", l.instanceID, declaredBy))
}

func (l *loggingEvents) SyncFailed(addr swim.Addr, err error) {
	iLogger.Error(nil, fmt.Sprintf("swim[%s]: sync with %s failed: %v", l.instanceID, addr, err))
}

func renderMetadata(metadata []byte) string {
	if len(metadata) == 0 {
		return "-"
	}
	return base58.Encode(metadata)
}
