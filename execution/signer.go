package execution

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EIP-712 ORDER SIGNING - Polymarket CTF Exchange
// ═══════════════════════════════════════════════════════════════════════════════

// CTF Exchange contract addresses (Polygon Mainnet)
const (
	polygonChainID     = 137
	ctfExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	zeroAddress        = "0x0000000000000000000000000000000000000000"
)

// Signature types
const (
	SignatureTypeEOA        = 0
	SignatureTypePolyProxy  = 1
	SignatureTypeGnosisSafe = 2
)

// ExchangeOrder is the on-chain order struct the exchange verifies.
type ExchangeOrder struct {
	Salt          *big.Int       `json:"salt"`
	Maker         common.Address `json:"maker"`
	Signer        common.Address `json:"signer"`
	Taker         common.Address `json:"taker"`
	TokenID       *big.Int       `json:"tokenId"`
	MakerAmount   *big.Int       `json:"makerAmount"`
	TakerAmount   *big.Int       `json:"takerAmount"`
	Expiration    *big.Int       `json:"expiration"`
	Nonce         *big.Int       `json:"nonce"`
	FeeRateBps    *big.Int       `json:"feeRateBps"`
	Side          uint8          `json:"side"`
	SignatureType uint8          `json:"signatureType"`
}

// SignedOrder is an order with its EIP-712 signature.
type SignedOrder struct {
	Order     *ExchangeOrder `json:"order"`
	Signature string         `json:"signature"`
}

// OrderSigner builds and signs exchange orders.
type OrderSigner struct {
	privateKey    *ecdsa.PrivateKey
	signerAddress common.Address
	funderAddress common.Address
	exchangeAddr  common.Address
	signatureType int
}

// NewOrderSigner creates a signer for the Polygon CTF Exchange.
func NewOrderSigner(privateKey *ecdsa.PrivateKey, signerAddr, funderAddr common.Address, signatureType int) *OrderSigner {
	return &OrderSigner{
		privateKey:    privateKey,
		signerAddress: signerAddr,
		funderAddress: funderAddr,
		exchangeAddr:  common.HexToAddress(ctfExchangeAddress),
		signatureType: signatureType,
	}
}

// BuildOrder creates an unsigned order. USDC and share amounts are scaled
// to 6-decimal token units; the USDC side is truncated rather than rounded
// so the order never exceeds budget.
func (s *OrderSigner) BuildOrder(tokenID string, action Action, price, size decimal.Decimal) (*ExchangeOrder, error) {
	tokenIDInt, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}

	usdc := size.Mul(price)
	var makerAmount, takerAmount *big.Int
	var side uint8
	if action == ActionBuy {
		// Buying: give USDC, receive shares
		makerAmount = toTokenUnitsTrunc(usdc)
		takerAmount = toTokenUnits(size)
		side = 0
	} else {
		// Selling: give shares, receive USDC
		makerAmount = toTokenUnits(size)
		takerAmount = toTokenUnits(usdc)
		side = 1
	}

	maker := s.funderAddress
	if maker == (common.Address{}) {
		maker = s.signerAddress
	}

	return &ExchangeOrder{
		Salt:          big.NewInt(rand.Int63()),
		Maker:         maker,
		Signer:        s.signerAddress,
		Taker:         common.HexToAddress(zeroAddress),
		TokenID:       tokenIDInt,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(1000),
		Side:          side,
		SignatureType: uint8(s.signatureType),
	}, nil
}

// SignOrder signs an order using EIP-712.
func (s *OrderSigner) SignOrder(order *ExchangeOrder) (*SignedOrder, error) {
	typedData := s.buildTypedData(order)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash)))
	hash := crypto.Keccak256Hash(rawData)

	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Ethereum expects V in {27, 28}
	if signature[64] < 27 {
		signature[64] += 27
	}

	return &SignedOrder{
		Order:     order,
		Signature: fmt.Sprintf("0x%x", signature),
	}, nil
}

func (s *OrderSigner) buildTypedData(order *ExchangeOrder) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(polygonChainID),
			VerifyingContract: s.exchangeAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt.String(),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       order.TokenID.String(),
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    order.Expiration.String(),
			"nonce":         order.Nonce.String(),
			"feeRateBps":    order.FeeRateBps.String(),
			"side":          fmt.Sprintf("%d", order.Side),
			"signatureType": fmt.Sprintf("%d", order.SignatureType),
		},
	}
}

// APIPayload converts a signed order to the CLOB submission format. The
// signature goes inside the order object and owner must be the API key.
func (o *SignedOrder) APIPayload(apiKey, orderType string) map[string]interface{} {
	sideStr := "BUY"
	if o.Order.Side == 1 {
		sideStr = "SELL"
	}

	return map[string]interface{}{
		"order": map[string]interface{}{
			"salt":          o.Order.Salt.Int64(),
			"maker":         o.Order.Maker.Hex(),
			"signer":        o.Order.Signer.Hex(),
			"taker":         o.Order.Taker.Hex(),
			"tokenId":       o.Order.TokenID.String(),
			"makerAmount":   o.Order.MakerAmount.String(),
			"takerAmount":   o.Order.TakerAmount.String(),
			"expiration":    o.Order.Expiration.String(),
			"nonce":         o.Order.Nonce.String(),
			"feeRateBps":    o.Order.FeeRateBps.String(),
			"side":          sideStr,
			"signatureType": int(o.Order.SignatureType),
			"signature":     o.Signature,
		},
		"owner":     apiKey,
		"orderType": orderType,
		"postOnly":  false,
	}
}

// toTokenUnits scales to 6-decimal token units, rounding to 4 decimals
// first (the exchange's share precision).
func toTokenUnits(amount decimal.Decimal) *big.Int {
	return big.NewInt(amount.Round(4).Shift(6).IntPart())
}

// toTokenUnitsTrunc truncates instead of rounding so USDC maker amounts
// never exceed the intended spend.
func toTokenUnitsTrunc(amount decimal.Decimal) *big.Int {
	return big.NewInt(amount.Shift(6).Truncate(0).IntPart())
}
