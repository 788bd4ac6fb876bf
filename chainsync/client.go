// Package chainsync is the chain follower: a WebSocket JSON-RPC client
// against an Ogmios-shaped chain-sync endpoint, the rollback engine that
// recovers from failed intersections, and the bounded block queue handing
// parsed blocks to the parser.
package chainsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cardano-dex/batcher-monitor/cardano/value"
)

// pipelineDepth is the number of in-flight nextBlock requests the client
// keeps outstanding — its only back-pressure lever against the chain
// endpoint (the block queue is the second lever, against the parser).
const pipelineDepth = 100

// Client maintains one connection to the chain-sync endpoint and delivers
// decoded blocks to a BlockQueue. Direction "backward" on nextBlock ends
// the current run; the supervisor triggers a rollback and calls Run again.
type Client struct {
	url   string
	queue *BlockQueue
}

// New returns a Client that will push decoded blocks onto queue.
func New(url string, queue *BlockQueue) *Client {
	return &Client{url: url, queue: queue}
}

// ErrRollbackBackward is returned from Run when the endpoint sends a
// "backward" direction — the supervisor should treat the run as failed and
// drive a rollback before starting the next one.
type ErrRollbackBackward struct {
	Point Point
}

func (e *ErrRollbackBackward) Error() string {
	return fmt.Sprintf("chainsync: rollback to slot %d (%s) requested by endpoint", e.Point.Slot, e.Point.Hash)
}

// Run connects, attempts to intersect at start, and streams blocks until
// ctx is cancelled, the connection fails, or the endpoint sends "backward"
// (*ErrRollbackBackward). The caller supplies start as the current best
// guess of where to resume; on IntersectionNotFound, Run returns that error
// directly so the supervisor can drive RollbackEngine and retry with an
// older point.
func (c *Client) Run(ctx context.Context, start Point) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("chainsync: dial %s: %w", c.url, err)
	}
	defer conn.Close()

	tip, err := findIntersection(conn, start)
	if err != nil {
		return err
	}
	log.Printf("[chainsync] intersected at slot %d, chain tip slot %d", start.Slot, tip.Slot)

	inFlight := 0
	for inFlight < pipelineDepth {
		if err := sendNextBlock(conn); err != nil {
			return fmt.Errorf("chainsync: pipeline nextBlock: %w", err)
		}
		inFlight++
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		direction, block, point, err := receiveNextBlock(conn)
		if err != nil {
			return fmt.Errorf("chainsync: receive: %w", err)
		}
		inFlight--

		switch direction {
		case "forward":
			c.queue.Push(*block)
			if err := sendNextBlock(conn); err != nil {
				return fmt.Errorf("chainsync: pipeline nextBlock: %w", err)
			}
			inFlight++
		case "backward":
			return &ErrRollbackBackward{Point: point}
		default:
			return fmt.Errorf("chainsync: unexpected direction %q", direction)
		}
	}
}

// IntersectionNotFoundError is returned when the endpoint rejects every
// offered point — the caller should consult the RollbackEngine for an
// older point and retry.
type IntersectionNotFoundError struct{}

func (e *IntersectionNotFoundError) Error() string { return "chainsync: intersection not found" }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func findIntersection(conn *websocket.Conn, p Point) (Point, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "findIntersection",
		Params: map[string]any{
			"points": []map[string]any{{"slot": p.Slot, "id": p.Hash}},
		},
		ID: 1,
	}
	if err := conn.WriteJSON(req); err != nil {
		return Point{}, fmt.Errorf("chainsync: send findIntersection: %w", err)
	}

	var resp rpcResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return Point{}, fmt.Errorf("chainsync: read findIntersection response: %w", err)
	}
	if resp.Error != nil {
		return Point{}, &IntersectionNotFoundError{}
	}

	var result struct {
		Tip struct {
			Slot uint64 `json:"slot"`
			ID   string `json:"id"`
		} `json:"tip"`
		Point struct {
			Slot uint64 `json:"slot"`
			ID   string `json:"id"`
		} `json:"point"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return Point{}, fmt.Errorf("chainsync: decode findIntersection result: %w", err)
	}
	return Point{Slot: result.Tip.Slot, Hash: result.Tip.ID}, nil
}

func sendNextBlock(conn *websocket.Conn) error {
	req := rpcRequest{JSONRPC: "2.0", Method: "nextBlock", Params: map[string]any{}, ID: 2}
	return conn.WriteJSON(req)
}

// wireBlock mirrors the JSON shape of a nextBlock "forward" response body.
type wireBlock struct {
	Slot         uint64 `json:"slot"`
	ID           string `json:"id"`
	Transactions []struct {
		ID     string `json:"id"`
		Inputs []struct {
			Transaction struct {
				ID string `json:"id"`
			} `json:"transaction"`
			Index int `json:"index"`
		} `json:"inputs"`
		Outputs []struct {
			Address   string                        `json:"address"`
			Value     map[string]map[string]uint64   `json:"value"`
			Datum     string                        `json:"datum"`
			DatumHash string                        `json:"datumHash"`
		} `json:"outputs"`
		Datums map[string]string `json:"datums"`
		Fee    struct {
			Ada struct {
				Lovelace uint64 `json:"lovelace"`
			} `json:"ada"`
		} `json:"fee"`
	} `json:"transactions"`
}

func receiveNextBlock(conn *websocket.Conn) (direction string, block *Block, point Point, err error) {
	var resp rpcResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return "", nil, Point{}, err
	}
	if resp.Error != nil {
		return "", nil, Point{}, fmt.Errorf("chainsync: nextBlock error: %s", resp.Error.Message)
	}

	var result struct {
		Direction string    `json:"direction"`
		Tip       Point     `json:"tip"`
		Block     wireBlock `json:"block"`
		Point     struct {
			Slot uint64 `json:"slot"`
			ID   string `json:"id"`
		} `json:"point"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", nil, Point{}, fmt.Errorf("decode nextBlock result: %w", err)
	}

	if result.Direction == "backward" {
		return "backward", nil, Point{Slot: result.Point.Slot, Hash: result.Point.ID}, nil
	}

	b := &Block{Slot: result.Block.Slot, Hash: result.Block.ID}
	for _, wt := range result.Block.Transactions {
		t := Tx{Hash: wt.ID, Datums: wt.Datums, FeeLovelace: wt.Fee.Ada.Lovelace}
		for _, wi := range wt.Inputs {
			t.Inputs = append(t.Inputs, Input{TxHash: wi.Transaction.ID, Index: wi.Index})
		}
		for _, wo := range wt.Outputs {
			t.Outputs = append(t.Outputs, Output{
				Address:   wo.Address,
				Value:     valueFromWire(wo.Value),
				Datum:     wo.Datum,
				DatumHash: wo.DatumHash,
			})
		}
		b.Transactions = append(b.Transactions, t)
	}
	return "forward", b, Point{}, nil
}

// valueFromWire converts the wire shape {policyId -> {assetName -> amount}}
// into a cardano/value.Value, treating the special "ada"/"lovelace" pair
// the same as value.Lovelace.
func valueFromWire(wire map[string]map[string]uint64) value.Value {
	v := value.New()
	for policy, assets := range wire {
		for name, amount := range assets {
			tok := value.Token{PolicyID: policy, AssetName: name}
			if policy == "ada" && name == "lovelace" {
				tok = value.Lovelace
			}
			v.Set(tok, amount)
		}
	}
	return v
}

// RunSupervised drives repeated Client.Run calls, consulting engine on
// IntersectionNotFoundError and reconnecting on transport failure. It
// returns only when ctx is cancelled or an unrecoverable rollback occurs.
func RunSupervised(ctx context.Context, client *Client, engine *RollbackEngine, start Point, onRollback func(toSlot uint64) error) error {
	point := start
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := client.Run(ctx, point)
		if err == nil {
			return nil
		}

		switch e := err.(type) {
		case *IntersectionNotFoundError:
			next, rerr := engine.PrevBlock()
			if rerr != nil {
				return fmt.Errorf("chainsync: rollback walk: %w", rerr)
			}
			if err := onRollback(next.Slot); err != nil {
				return fmt.Errorf("chainsync: apply rollback: %w", err)
			}
			point = next
		case *ErrRollbackBackward:
			if err := onRollback(e.Point.Slot); err != nil {
				return fmt.Errorf("chainsync: apply rollback: %w", err)
			}
			point = e.Point
		default:
			log.Printf("[chainsync] run failed, reconnecting: %v", err)
			time.Sleep(2 * time.Second)
		}
	}
}
