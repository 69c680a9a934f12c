package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/calm/chain"
	"xdao.co/calm/cidutil"
	"xdao.co/calm/model"
	"xdao.co/calm/storage"
	"xdao.co/calm/tokenid"
)

// Client calls a Claims gRPC service and decodes the JSON replies.
type Client struct {
	cc     *grpc.ClientConn
	client ClaimsClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an established connection. Close closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewClaimsClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func (c *Client) raw(ctx context.Context, method string, in []byte) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Call(ctx, method, wrapperspb.Bytes(in))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := json.Marshal(req)
	if err != nil {
		return err
	}
	out, err := c.raw(ctx, method, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, resp); err != nil {
		return fmt.Errorf("rpc: %s: decode reply: %w", method, err)
	}
	return nil
}

func (c *Client) Info(ctx context.Context) (*model.Info, error) {
	var out model.Info
	if err := c.call(ctx, "Info", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Claim submits a claim transaction. Rejections are returned as receipts
// with Status chain.StatusRejected, not as errors.
func (c *Client) Claim(ctx context.Context, req model.ClaimRequest) (*chain.Receipt, error) {
	var out chain.Receipt
	if err := c.call(ctx, "Claim", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Nonce(ctx context.Context, creator common.Address) (*big.Int, error) {
	var out model.NonceResponse
	if err := c.call(ctx, "Nonce", model.NonceRequest{Creator: creator.Hex()}, &out); err != nil {
		return nil, err
	}
	return model.ParseUint("nonce", out.Nonce)
}

// OwnerOf returns the owner of id; ok is false while the token is unminted.
func (c *Client) OwnerOf(ctx context.Context, id tokenid.ID) (owner common.Address, ok bool, err error) {
	var out model.OwnerResponse
	if err := c.call(ctx, "OwnerOf", model.OwnerRequest{TokenID: id.String()}, &out); err != nil {
		return common.Address{}, false, err
	}
	if !out.Minted {
		return common.Address{}, false, nil
	}
	owner, err = model.ParseAddress("owner", out.Owner, false)
	return owner, err == nil, err
}

func (c *Client) Balance(ctx context.Context, currency, account common.Address) (*big.Int, error) {
	req := model.BalanceRequest{Account: account.Hex(), Currency: currency.Hex()}
	var out model.BalanceResponse
	if err := c.call(ctx, "Balance", req, &out); err != nil {
		return nil, err
	}
	return model.ParseUint("balance", out.Balance)
}

// Faucet requests native funds for to. A nil amount asks for the server
// default. It returns the new balance.
func (c *Client) Faucet(ctx context.Context, to common.Address, amount *big.Int) (*big.Int, error) {
	req := model.FaucetRequest{To: to.Hex()}
	if amount != nil {
		req.Amount = amount.String()
	}
	var out model.BalanceResponse
	if err := c.call(ctx, "Faucet", req, &out); err != nil {
		return nil, err
	}
	return model.ParseUint("balance", out.Balance)
}

// PutMetadata stores b. The returned CID is checked against the bytes sent.
// When creator is non-zero the reply carries the derived token id.
func (c *Client) PutMetadata(ctx context.Context, b []byte, creator common.Address) (*model.MetadataResponse, error) {
	expected, err := cidutil.CIDv1RawSHA1(b)
	if err != nil {
		return nil, err
	}
	req := model.MetadataRequest{Bytes: b}
	if creator != (common.Address{}) {
		req.Creator = creator.Hex()
	}
	var out model.MetadataResponse
	if err := c.call(ctx, "PutMetadata", req, &out); err != nil {
		return nil, err
	}
	if out.CID != expected.String() {
		return nil, storage.ErrCIDMismatch
	}
	return &out, nil
}

// GetMetadata fetches the object named id and verifies its CID.
func (c *Client) GetMetadata(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := c.raw(ctx, "GetMetadata", []byte(id.String()))
	if err != nil {
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA1(b)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}
