package bitcoin

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ARandomInvestor/amfeix-api/entities"
)

const electrumProtocolVersion = "1.4"

type ElectrumConfig struct {
	Host string
	Port int
	SSL  bool
	// InsecureSkipVerify accepts self-signed server certificates, common on Electrum servers.
	InsecureSkipVerify bool
	Timeout            time.Duration
	ClientName         string
}

// ElectrumClient opens a fresh connection per request, so a retry is always a reconnect.
type ElectrumClient struct {
	cfg ElectrumConfig
}

var _ HistoryIndex = (*ElectrumClient)(nil)

func NewElectrumClient(cfg ElectrumConfig) *ElectrumClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "amfeix-api"
	}
	return &ElectrumClient{cfg: cfg}
}

func (c *ElectrumClient) dial(ctx context.Context) (net.Conn, error) {
	address := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	if !c.cfg.SSL {
		return dialer.DialContext(ctx, "tcp", address)
	}
	tlsDialer := &tls.Dialer{
		NetDialer: dialer,
		Config: &tls.Config{
			ServerName:         c.cfg.Host,
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
	}
	return tlsDialer.DialContext(ctx, "tcp", address)
}

type electrumConn struct {
	conn   net.Conn
	reader *bufio.Reader
	nextID int
}

func (e *electrumConn) request(method string, params []interface{}, out interface{}) error {
	id := e.nextID
	e.nextID++
	payload, err := json.Marshal(entities.ElectrumRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}
	if _, err := e.conn.Write(append(payload, '\n')); err != nil {
		return err
	}

	for {
		line, err := e.reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("electrum %s: %w", method, err)
		}
		var res entities.ElectrumResponse
		if err := json.Unmarshal(line, &res); err != nil {
			return fmt.Errorf("electrum %s: malformed response: %w", method, err)
		}
		// subscriptions push notifications without an id
		if res.ID == nil || *res.ID != id {
			continue
		}
		if len(res.Error) > 0 && string(res.Error) != "null" {
			return fmt.Errorf("electrum %s: %s", method, electrumErrorMessage(res.Error))
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(res.Result, out)
	}
}

func electrumErrorMessage(raw json.RawMessage) string {
	var structured struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Message != "" {
		return fmt.Sprintf("%s (code %d)", structured.Message, structured.Code)
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return string(raw)
}

func (c *ElectrumClient) GetHistory(ctx context.Context, scripthash string) ([]entities.ElectrumHistoryItem, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	e := &electrumConn{conn: conn, reader: bufio.NewReader(conn)}
	if err := e.request("server.version", []interface{}{c.cfg.ClientName, electrumProtocolVersion}, nil); err != nil {
		return nil, err
	}
	var history []entities.ElectrumHistoryItem
	if err := e.request("blockchain.scripthash.get_history", []interface{}{scripthash}, &history); err != nil {
		return nil, err
	}
	return history, nil
}
