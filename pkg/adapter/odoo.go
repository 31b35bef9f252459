package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
)

// OdooClient implements ERPClient over Odoo's JSON-RPC endpoint.
// Authentication is lazy and the uid is cached for the client's lifetime.
type OdooClient struct {
	url      string
	db       string
	user     string
	password string
	hc       *http.Client

	mu  sync.Mutex
	uid int
}

// NewOdooClient builds a client for one Odoo instance.
func NewOdooClient(url, db, user, password string) *OdooClient {
	return &OdooClient{
		url:      url,
		db:       db,
		user:     user,
		password: password,
		hc:       &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *OdooClient) FindPartner(ctx context.Context, name string) (int64, bool, error) {
	raw, err := c.execKw(ctx, "res.partner", "search",
		[]any{[]any{[]any{"name", "=", name}}},
		map[string]any{"limit": 1})
	if err != nil {
		return 0, false, err
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return 0, false, types.Permanentf("odoo search result: %v", err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

func (c *OdooClient) CreatePartner(ctx context.Context, name string) (int64, error) {
	raw, err := c.execKw(ctx, "res.partner", "create",
		[]any{map[string]any{"name": name}}, nil)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, types.Permanentf("odoo create result: %v", err)
	}
	return id, nil
}

func (c *OdooClient) CreateInvoice(ctx context.Context, partnerID int64, amount float64, description string) error {
	_, err := c.execKw(ctx, "account.move", "create",
		[]any{map[string]any{
			"move_type":  "out_invoice",
			"partner_id": partnerID,
			"invoice_line_ids": []any{
				[]any{0, 0, map[string]any{
					"name":       description,
					"quantity":   1,
					"price_unit": amount,
				}},
			},
		}}, nil)
	return err
}

func (c *OdooClient) CreateQuotation(ctx context.Context, partnerID int64, amount float64, description string) error {
	_, err := c.execKw(ctx, "sale.order", "create",
		[]any{map[string]any{
			"partner_id": partnerID,
			"order_line": []any{
				[]any{0, 0, map[string]any{
					"name":            description,
					"product_uom_qty": 1,
					"price_unit":      amount,
				}},
			},
		}}, nil)
	return err
}

// execKw performs one object.execute_kw call, authenticating first if
// needed.
func (c *OdooClient) execKw(ctx context.Context, model, method string, args []any, kw map[string]any) (json.RawMessage, error) {
	uid, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	if kw == nil {
		kw = map[string]any{}
	}
	return c.call(ctx, "object", "execute_kw",
		[]any{c.db, uid, c.password, model, method, args, kw})
}

func (c *OdooClient) login(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	raw, err := c.call(ctx, "common", "authenticate",
		[]any{c.db, c.user, c.password, map[string]any{}})
	if err != nil {
		return 0, err
	}
	var uid int
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		// Odoo returns false for bad credentials.
		return 0, types.Permanentf("odoo authentication failed for %s", c.user)
	}
	c.uid = uid
	return uid, nil
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      int64          `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string `json:"message"`
	Data    struct {
		Message string `json:"message"`
	} `json:"data"`
}

func (c *OdooClient) call(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]any{
			"service": service,
			"method":  method,
			"args":    args,
		},
		ID: time.Now().UnixNano(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, types.Transientf("odoo request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, types.Transientf("odoo returned %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.Permanentf("odoo returned %s", resp.Status)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, types.Permanentf("odoo response: %v", err)
	}
	if rpc.Error != nil {
		msg := rpc.Error.Data.Message
		if msg == "" {
			msg = rpc.Error.Message
		}
		return nil, types.Permanentf("odoo %s.%s: %s", service, method, msg)
	}
	return rpc.Result, nil
}

var _ ERPClient = (*OdooClient)(nil)
