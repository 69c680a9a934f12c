package chain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/cidutil"
	"xdao.co/calm/claim"
	"xdao.co/calm/keys"
	"xdao.co/calm/nft"
	"xdao.co/calm/tokenid"
)

// Receipt statuses.
const (
	StatusRejected uint8 = 0
	StatusSuccess  uint8 = 1
)

// Receipt records one submitted claim transaction.
//
// CID is the CIDv1 (raw, sha2-256) of the receipt's JSON encoding with CID
// and Attestation cleared. Attestation, when present, signs the CID string.
type Receipt struct {
	ID       string         `json:"id"`
	Status   uint8          `json:"status"`
	Rule     string         `json:"rule,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Message  string         `json:"message,omitempty"`
	Claimant common.Address `json:"claimant"`
	TokenID  tokenid.ID     `json:"tokenId"`
	// Cost is the flat transaction cost charged to the claimant.
	Cost   *big.Int            `json:"cost"`
	Events []nft.TransferEvent `json:"events"`
	Result *claim.Result       `json:"result,omitempty"`

	CID         string            `json:"cid,omitempty"`
	Attestation *keys.Attestation `json:"attestation,omitempty"`
}

func (r *Receipt) Succeeded() bool { return r.Status == StatusSuccess }

func (r *Receipt) contentCID() (string, error) {
	c := *r
	c.CID = ""
	c.Attestation = nil
	b, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("chain: encode receipt: %w", err)
	}
	return cidutil.CIDv1RawSHA256(b), nil
}

// seal sets CID and, if a is non-nil, Attestation.
func (r *Receipt) seal(a *keys.Attester) error {
	id, err := r.contentCID()
	if err != nil {
		return err
	}
	r.CID = id
	if a == nil {
		return nil
	}
	att, err := a.Attest([]byte(id))
	if err != nil {
		return fmt.Errorf("chain: attest receipt: %w", err)
	}
	r.Attestation = &att
	return nil
}

// VerifyReceipt checks that r's CID matches its content and that its
// attestation signs that CID. If attesterKey is non-empty the attestation
// must come from that key; an unattested receipt then fails.
func VerifyReceipt(r *Receipt, attesterKey string) error {
	id, err := r.contentCID()
	if err != nil {
		return err
	}
	if id != r.CID {
		return fmt.Errorf("chain: receipt cid mismatch: have %s, content is %s", r.CID, id)
	}
	if r.Attestation == nil {
		if attesterKey != "" {
			return fmt.Errorf("chain: receipt is not attested")
		}
		return nil
	}
	if attesterKey != "" && r.Attestation.Key != attesterKey {
		return fmt.Errorf("chain: receipt attested by %s, want %s", r.Attestation.Key, attesterKey)
	}
	return keys.VerifyAttestation([]byte(r.CID), *r.Attestation)
}
