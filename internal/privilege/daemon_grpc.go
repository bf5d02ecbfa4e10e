// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package privilege

import (
	"context"
	"encoding/json"
	"net"

	"github.com/mdlayher/vsock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// jsonCodec is a minimal grpc.Codec for the assistive-daemon control
// protocol. The daemon's wire contract is a single small request/response
// pair, not worth a protobuf toolchain dependency; grpc's pluggable codec
// lets it ride on grpc's connection management (keepalive, backoff,
// READY/TRANSIENT_FAILURE signaling) without generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error  { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                        { return "json" }

// daemonRequest / daemonResponse are the wire types for the single
// "Execute" RPC the assistive daemon exposes.
type daemonRequest struct {
	Command string `json:"command"`
}

type daemonResponse struct {
	ExitCode     int32  `json:"exit_code"`
	Output       string `json:"output"`
	EffectiveUID int32  `json:"effective_uid"`
}

const daemonServiceName = "shieldcore.assistive.Daemon"
const daemonExecuteMethod = "/" + daemonServiceName + "/Execute"

// GRPCAssistiveDaemon implements AssistiveDaemon over a grpc.ClientConn,
// dialed either over a Unix domain socket (default) or over vsock for
// sandboxed/virtualized deployment profiles (SPEC_FULL.md §4.2).
type GRPCAssistiveDaemon struct {
	conn *grpc.ClientConn
}

// DialUnix connects to the assistive daemon over a Unix domain socket.
func DialUnix(ctx context.Context, socketPath string) (*GRPCAssistiveDaemon, error) {
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}
	conn, err := grpc.NewClient("passthrough:unix",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, err
	}
	return &GRPCAssistiveDaemon{conn: conn}, nil
}

// DialVsock connects to the assistive daemon over virtio-vsock, used when
// the core and the daemon run in separate lightweight VMs sharing a vsock
// transport instead of a filesystem-visible Unix socket.
func DialVsock(ctx context.Context, cid, port uint32) (*GRPCAssistiveDaemon, error) {
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return vsock.Dial(cid, port, nil)
	}
	conn, err := grpc.NewClient("passthrough:vsock",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, err
	}
	return &GRPCAssistiveDaemon{conn: conn}, nil
}

func (d *GRPCAssistiveDaemon) Reachable(ctx context.Context) bool {
	state := d.conn.GetState()
	return state.String() == "READY" || state.String() == "IDLE" || state.String() == "CONNECTING"
}

func (d *GRPCAssistiveDaemon) EffectiveUID(ctx context.Context) (int, error) {
	resp, err := d.call(ctx, "whoami")
	if err != nil {
		return 0, err
	}
	return int(resp.EffectiveUID), nil
}

func (d *GRPCAssistiveDaemon) Execute(ctx context.Context, command string) (ExecResult, error) {
	resp, err := d.call(ctx, command)
	if err != nil {
		return ExecResult{ExitCode: -1}, err
	}
	return ExecResult{ExitCode: int(resp.ExitCode), CombinedOutput: resp.Output}, nil
}

func (d *GRPCAssistiveDaemon) Watch(ctx context.Context) <-chan struct{} {
	died := make(chan struct{})
	go func() {
		defer close(died)
		for {
			state := d.conn.GetState()
			if !d.conn.WaitForStateChange(ctx, state) {
				return
			}
			if d.conn.GetState().String() == "SHUTDOWN" {
				return
			}
		}
	}()
	return died
}

func (d *GRPCAssistiveDaemon) call(ctx context.Context, command string) (*daemonResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	req := &daemonRequest{Command: command}
	resp := &daemonResponse{}
	err := d.conn.Invoke(ctx, daemonExecuteMethod, req, resp)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return nil, err
		}
		return nil, err
	}
	return resp, nil
}

// Close releases the underlying grpc connection.
func (d *GRPCAssistiveDaemon) Close() error { return d.conn.Close() }
