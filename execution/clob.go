package execution

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CLOB CLIENT - live order submission
// ═══════════════════════════════════════════════════════════════════════════════

// CLOBConfig carries the credentials for live trading.
type CLOBConfig struct {
	BaseURL          string
	APIKey           string
	APISecret        string
	Passphrase       string
	WalletPrivateKey string
	SignerAddress    string
	FunderAddress    string
	SignatureType    int
}

// CLOBClient submits EIP-712 signed orders to the CLOB REST API.
type CLOBClient struct {
	cfg        CLOBConfig
	signer     *OrderSigner
	httpClient *http.Client
}

// NewCLOBClient builds a client from credentials. Fails if the private
// key cannot be parsed.
func NewCLOBClient(cfg CLOBConfig) (*CLOBClient, error) {
	c := &CLOBClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	if cfg.WalletPrivateKey != "" {
		pk, err := crypto.HexToECDSA(cfg.WalletPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		signerAddr := common.HexToAddress(cfg.SignerAddress)
		if signerAddr == (common.Address{}) {
			signerAddr = crypto.PubkeyToAddress(pk.PublicKey)
		}
		c.signer = NewOrderSigner(pk, signerAddr, common.HexToAddress(cfg.FunderAddress), cfg.SignatureType)
	}

	log.Info().Str("url", cfg.BaseURL).Msg("💳 CLOB client initialized")
	return c, nil
}

// PlaceOrder signs and posts one fill-or-kill order, returning the venue
// order id.
func (c *CLOBClient) PlaceOrder(ctx context.Context, tokenID string, action Action, price, size decimal.Decimal) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("no signing key loaded")
	}

	order, err := c.signer.BuildOrder(tokenID, action, price, size)
	if err != nil {
		return "", err
	}

	signed, err := c.signer.SignOrder(order)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}

	resp, err := c.post(ctx, "/order", signed.APIPayload(c.cfg.APIKey, "FOK"))
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"orderID"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("API error: %s", result.Error)
	}

	log.Info().
		Str("order_id", result.OrderID).
		Str("status", result.Status).
		Msg("✅ Order placed")

	return result.OrderID, nil
}

// CancelOrder cancels an open order.
func (c *CLOBClient) CancelOrder(ctx context.Context, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/order/"+orderID, nil)
	if err != nil {
		return err
	}
	c.addAuthHeaders(req)
	_, err = c.doRequest(req)
	return err
}

func (c *CLOBClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	jsonBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAuthHeaders(req)
	return c.doRequest(req)
}

func (c *CLOBClient) addAuthHeaders(req *http.Request) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req.Header.Set("POLY_API_KEY", c.cfg.APIKey)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.cfg.Passphrase)

	if c.cfg.APISecret != "" {
		message := timestamp + req.Method + req.URL.Path
		req.Header.Set("POLY_SIGNATURE", c.hmacSign(message))
	}
}

func (c *CLOBClient) hmacSign(message string) string {
	secret, err := base64.URLEncoding.DecodeString(c.cfg.APISecret)
	if err != nil {
		secret = []byte(c.cfg.APISecret)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *CLOBClient) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
