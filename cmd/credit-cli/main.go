package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"creditnet/crypto"
)

func main() {
	args := os.Args[1:]
	cfg, args, err := loadCLIConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	client := &rpcClient{endpoint: cfg.RPCURL, token: cfg.AuthToken}

	command := args[0]
	var cmdErr error
	switch command {
	case "generate-key":
		cmdErr = generateKey()
	case "market":
		cmdErr = client.printCall("credit_getMarket")
	case "position":
		cmdErr = requireArg(args, 1, "address", func(addr string) error {
			return client.printCall("credit_getPosition", addr)
		})
	case "status":
		cmdErr = requireArg(args, 1, "address", func(addr string) error {
			return client.printCall("credit_getStatus", addr)
		})
	case "obligation":
		cmdErr = requireArg(args, 1, "address", func(addr string) error {
			return client.printCall("credit_getObligation", addr)
		})
	case "supply":
		cmdErr = requireTwoArgs(args, "address", "amount", func(addr, amount string) error {
			return client.printCall("credit_supply", map[string]string{"from": addr, "amount": amount})
		})
	case "withdraw":
		cmdErr = requireTwoArgs(args, "address", "shares", func(addr, shares string) error {
			return client.printCall("credit_withdraw", map[string]string{"from": addr, "amount": shares})
		})
	case "borrow":
		cmdErr = requireTwoArgs(args, "address", "amount", func(addr, amount string) error {
			return client.printCall("credit_borrow", map[string]string{"borrower": addr, "assets": amount})
		})
	case "repay":
		cmdErr = requireTwoArgs(args, "address", "amount", func(addr, amount string) error {
			return client.printCall("credit_repay", map[string]string{"from": addr, "amount": amount})
		})
	case "accrue":
		cmdErr = requireArg(args, 1, "address", func(addr string) error {
			return client.printCall("credit_accruePremium", map[string]string{"borrower": addr})
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, cmdErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: credit-cli [--config path] [--rpc url] <command>

Commands:
  generate-key                create a new account key and print its address
  market                      show the pooled market state
  position <address>          show a position and its live debt value
  status <address>            show the repayment status of a borrower
  obligation <address>        show the latest repayment obligation
  supply <address> <amount>   supply assets to the pool
  withdraw <address> <shares> redeem supply shares
  borrow <address> <amount>   draw assets against a credit line
  repay <address> <amount>    repay debt (obligations must be paid in full)
  accrue <address>            bring a borrower's premium accrual current

The RPC bearer token is read from CREDIT_RPC_TOKEN or the config file.`)
}

func requireArg(args []string, n int, name string, fn func(string) error) error {
	if len(args) <= n {
		return fmt.Errorf("missing %s argument", name)
	}
	return fn(args[n])
}

func requireTwoArgs(args []string, first, second string, fn func(string, string) error) error {
	if len(args) < 3 {
		return fmt.Errorf("missing %s and %s arguments", first, second)
	}
	return fn(args[1], args[2])
}

func generateKey() error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	fmt.Printf("address: %s\n", key.PubKey().Address().String())
	fmt.Printf("private: %s\n", hex.EncodeToString(key.Bytes()))
	return nil
}

type rpcClient struct {
	endpoint string
	token    string
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data,omitempty"`
	} `json:"error,omitempty"`
}

func (c *rpcClient) printCall(method string, params ...interface{}) error {
	result, err := c.call(method, params...)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func (c *rpcClient) call(method string, params ...interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpClient := &http.Client{Timeout: 15 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var envelope rpcEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w (%s)", err, strings.TrimSpace(string(body)))
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("%s failed: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	return envelope.Result, nil
}
