package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// isGatewayReachable tries a quick RPC ping to check if the gateway is up.
func isGatewayReachable() bool {
	_, err := gatewayRPC(protocol.MethodHealth, nil)
	return err == nil
}

// mustRPC calls method and exits with the gateway's message on failure.
func mustRPC(method string, params any) *protocol.ResponseFrame {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	resp, err := gatewayRPC(method, raw)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Printf("Failed: %s (%s)\n", resp.Error.Message, resp.Error.Code)
		os.Exit(1)
	}
	return resp
}

// decodePayload re-encodes a response payload into v.
func decodePayload(resp *protocol.ResponseFrame, v any) error {
	raw, err := json.Marshal(resp.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// dialGateway connects to the running gateway and completes the connect
// handshake.
func dialGateway() (*websocket.Conn, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	host := cfg.Gateway.Host
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, cfg.Gateway.Port), Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to gateway at %s: %w", u.String(), err)
	}

	connectParams, _ := json.Marshal(protocol.ConnectParams{
		Token:    cfg.Gateway.Token,
		Protocol: protocol.ProtocolVersion,
		Client:   "pairlink-cli",
	})
	connectReq := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-connect",
		Method: protocol.MethodConnect,
		Params: connectParams,
	}
	if err := conn.WriteJSON(connectReq); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var connectResp protocol.ResponseFrame
	if err := conn.ReadJSON(&connectResp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	if !connectResp.OK {
		conn.Close()
		msg := "unknown error"
		if connectResp.Error != nil {
			msg = connectResp.Error.Message
		}
		return nil, fmt.Errorf("connect failed: %s", msg)
	}
	return conn, nil
}

// gatewayRPC connects to the running gateway, authenticates, sends an RPC call, and returns the response.
func gatewayRPC(method string, params json.RawMessage) (*protocol.ResponseFrame, error) {
	conn, err := dialGateway()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return sendRPC(conn, "cli-rpc", method, params, nil)
}

// sendRPC sends one request on conn and waits for its response. Events
// read in the meantime are passed to onEvent when it is non-nil.
func sendRPC(conn *websocket.Conn, id, method string, params json.RawMessage, onEvent func([]byte)) (*protocol.ResponseFrame, error) {
	rpcReq := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: params,
	}
	if err := conn.WriteJSON(rpcReq); err != nil {
		return nil, fmt.Errorf("send RPC: %w", err)
	}

	// Read response (skip events, find response with matching ID)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		frameType, _ := protocol.ParseFrameType(msg)
		if frameType == protocol.FrameTypeEvent {
			if onEvent != nil {
				onEvent(msg)
			}
			continue
		}

		var resp protocol.ResponseFrame
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if resp.ID == id {
			return &resp, nil
		}
	}
}
