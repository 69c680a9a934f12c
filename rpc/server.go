package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/calm/chain"
	"xdao.co/calm/cidutil"
	"xdao.co/calm/funds"
	"xdao.co/calm/metrics"
	"xdao.co/calm/model"
	"xdao.co/calm/storage"
	"xdao.co/calm/tokenid"
)

// Server exposes a chain.Submitter and a metadata store over the Claims
// gRPC service.
type Server struct {
	UnimplementedClaimsServer
	Submitter *chain.Submitter
	// Metadata holds token metadata. PutMetadata and GetMetadata fail with
	// FailedPrecondition when it is nil.
	Metadata storage.CAS
	Symbol   string
	Metrics  *metrics.Metrics
}

func decode(in *wrapperspb.BytesValue, v any) error {
	if err := json.Unmarshal(in.GetValue(), v); err != nil {
		return toStatus(model.NewError(model.ErrInvalidRequest, "malformed JSON: "+err.Error()))
	}
	return nil
}

func encode(v any) (*wrapperspb.BytesValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) ready() error {
	if s == nil || s.Submitter == nil {
		return status.Error(codes.FailedPrecondition, "missing submitter")
	}
	return nil
}

func (s *Server) Info(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if err := s.ready(); err != nil {
		return nil, err
	}
	d := s.Submitter.Executor().Domain()
	return encode(model.Info{
		Name:        d.Name,
		Symbol:      s.Symbol,
		Version:     d.Version,
		ChainID:     d.ChainID.String(),
		Contract:    d.VerifyingContract.Hex(),
		Cost:        s.Submitter.Cost().String(),
		AttesterKey: s.Submitter.AttesterKey(),
		Faucet:      s.Submitter.FaucetEnabled(),
	})
}

// Claim submits a claim transaction. A rejected claim is not an RPC error:
// it comes back as a receipt with status 0 and the rule that failed.
func (s *Server) Claim(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req model.ClaimRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	creq, err := req.ToRequest()
	if err != nil {
		return nil, mapErr(err)
	}
	rcpt, err := s.Submitter.Submit(ctx, creq)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(rcpt)
}

func (s *Server) Nonce(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req model.NonceRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	creator, err := model.ParseAddress("creator", req.Creator, false)
	if err != nil {
		return nil, mapErr(err)
	}
	n, err := s.Submitter.Executor().Nonce(ctx, creator)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(model.NonceResponse{Creator: creator.Hex(), Nonce: n.String()})
}

func (s *Server) OwnerOf(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req model.OwnerRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	id, err := tokenid.Parse(req.TokenID)
	if err != nil {
		return nil, toStatus(model.NewError(model.ErrInvalidRequest, "tokenId: "+err.Error()))
	}
	owner, ok, err := s.Submitter.Executor().OwnerOf(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	out := model.OwnerResponse{TokenID: id.String(), Minted: ok}
	if ok {
		out.Owner = owner.Hex()
	}
	return encode(out)
}

func (s *Server) Balance(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req model.BalanceRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	account, err := model.ParseAddress("account", req.Account, false)
	if err != nil {
		return nil, mapErr(err)
	}
	currency, err := model.ParseAddress("currency", req.Currency, true)
	if err != nil {
		return nil, mapErr(err)
	}
	bal, err := s.Submitter.Executor().Balance(ctx, currency, account)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(model.BalanceResponse{Account: account.Hex(), Currency: currency.Hex(), Balance: bal.String()})
}

// PutMetadata stores token metadata and, when a creator is given, returns
// the token id the creator would mint for it.
func (s *Server) PutMetadata(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Metadata == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing metadata store")
	}
	var req model.MetadataRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	var creator common.Address
	if req.Creator != "" {
		var err error
		if creator, err = model.ParseAddress("creator", req.Creator, false); err != nil {
			return nil, mapErr(err)
		}
	}
	// Enforce the CID contract on the server side too.
	expected, err := cidutil.CIDv1RawSHA1(req.Bytes)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Metadata.Put(req.Bytes)
	if err != nil {
		return nil, mapErr(err)
	}
	if !id.Equals(expected) {
		return nil, mapErr(storage.ErrCIDMismatch)
	}
	if s.Metrics != nil {
		s.Metrics.IncrementMetadata()
	}
	out := model.MetadataResponse{CID: id.String()}
	if creator != (common.Address{}) {
		out.TokenID = tokenid.Derive(req.Bytes, creator).String()
	}
	return encode(out)
}

// GetMetadata takes a CID string and returns the raw object bytes.
func (s *Server) GetMetadata(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Metadata == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing metadata store")
	}
	id, err := cid.Decode(string(in.GetValue()))
	if err != nil || !id.Defined() {
		return nil, mapErr(storage.ErrInvalidCID)
	}
	b, err := s.Metadata.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	got, err := cidutil.CIDv1RawSHA1(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	if !got.Equals(id) {
		return nil, mapErr(storage.ErrCIDMismatch)
	}
	return wrapperspb.Bytes(b), nil
}

// Faucet credits native funds and returns the new balance.
func (s *Server) Faucet(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req model.FaucetRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	to, err := model.ParseAddress("to", req.To, false)
	if err != nil {
		return nil, mapErr(err)
	}
	var amount *big.Int
	if req.Amount != "" {
		if amount, err = model.ParseUint("amount", req.Amount); err != nil {
			return nil, mapErr(err)
		}
	}
	bal, err := s.Submitter.Faucet(ctx, to, amount)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(model.BalanceResponse{Account: to.Hex(), Currency: funds.Native.Hex(), Balance: bal.String()})
}

// mapErr converts errors to gRPC statuses. The status message carries the
// model error code so clients can rebuild a model.CodedError.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *model.CodedError
	switch {
	case errors.As(err, &coded):
		return toStatus(coded)
	case errors.Is(err, storage.ErrNotFound):
		return toStatus(model.NewError(model.ErrNotFound, err.Error()))
	case errors.Is(err, storage.ErrInvalidCID):
		return toStatus(model.NewError(model.ErrInvalidCID, err.Error()))
	case errors.Is(err, storage.ErrCIDMismatch), errors.Is(err, storage.ErrImmutable):
		return toStatus(model.NewError(model.ErrCIDMismatch, err.Error()))
	case errors.Is(err, chain.ErrInsufficientFunds):
		return toStatus(model.NewError(model.ErrInsufficientFunds, err.Error()))
	case errors.Is(err, chain.ErrFaucetDisabled):
		return toStatus(model.NewError(model.ErrFaucetDisabled, err.Error()))
	case errors.Is(err, chain.ErrFaucetRequest):
		return toStatus(model.NewError(model.ErrInvalidRequest, err.Error()))
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return toStatus(model.NewError(model.ErrInternal, err.Error()))
	}
}

var statusCodes = map[model.ErrorCode]codes.Code{
	model.ErrInvalidRequest:    codes.InvalidArgument,
	model.ErrInvalidCID:        codes.InvalidArgument,
	model.ErrNotFound:          codes.NotFound,
	model.ErrCIDMismatch:       codes.DataLoss,
	model.ErrInsufficientFunds: codes.FailedPrecondition,
	model.ErrFaucetDisabled:    codes.PermissionDenied,
	model.ErrInternal:          codes.Internal,
}

func toStatus(e *model.CodedError) error {
	c, ok := statusCodes[e.Code]
	if !ok {
		c = codes.Unknown
	}
	return status.Error(c, e.Error())
}
