// Package permit builds gasless token-transfer authorizations in the
// Permit2 SignatureTransfer format. The relayer only constructs the
// typed-data payload and the on-wire permitData blob; signing happens
// in the user's wallet or through an injected Signer.
package permit

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrMissingSignature is returned when encoding permitData without a signature.
var ErrMissingSignature = errors.New("permit signature is required")

// Permit is a single-use token-transfer authorization scoped to one spender.
type Permit struct {
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
	Spender  common.Address `json:"spender"`
	Nonce    *big.Int       `json:"nonce"`
	Deadline *big.Int       `json:"deadline"`
}

// TypedData returns the EIP-712 payload the token owner must sign.
// Domain and type layout follow the canonical Permit2 deployment.
func (p Permit) TypedData(chainID uint64, permit2 common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"PermitTransferFrom": {
				{Name: "permitted", Type: "TokenPermissions"},
				{Name: "spender", Type: "address"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
			"TokenPermissions": {
				{Name: "token", Type: "address"},
				{Name: "amount", Type: "uint256"},
			},
		},
		PrimaryType: "PermitTransferFrom",
		Domain: apitypes.TypedDataDomain{
			Name:              "Permit2",
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: permit2.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"permitted": map[string]interface{}{
				"token":  p.Token.Hex(),
				"amount": p.Amount.String(),
			},
			"spender":  p.Spender.Hex(),
			"nonce":    p.Nonce.String(),
			"deadline": p.Deadline.String(),
		},
	}
}

// permitDataArgs is the abi layout the settlement engine expects:
// abi.encode(((address,uint256) permitted, uint256 nonce, uint256 deadline), bytes signature)
var permitDataArgs abi.Arguments

func init() {
	permitType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "permitted", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint256"},
		}},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	permitDataArgs = abi.Arguments{
		{Name: "permit", Type: permitType},
		{Name: "signature", Type: bytesType},
	}
}

type tokenPermissions struct {
	Token  common.Address `abi:"token"`
	Amount *big.Int       `abi:"amount"`
}

type permitTransferFrom struct {
	Permitted tokenPermissions `abi:"permitted"`
	Nonce     *big.Int         `abi:"nonce"`
	Deadline  *big.Int         `abi:"deadline"`
}

// EncodeData packs the permit and its signature into the permitData blob
// passed to createEscrow.
func (p Permit) EncodeData(signature []byte) ([]byte, error) {
	if len(signature) == 0 {
		return nil, ErrMissingSignature
	}
	packed, err := permitDataArgs.Pack(
		permitTransferFrom{
			Permitted: tokenPermissions{Token: p.Token, Amount: p.Amount},
			Nonce:     p.Nonce,
			Deadline:  p.Deadline,
		},
		signature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permit data: %w", err)
	}
	return packed, nil
}
