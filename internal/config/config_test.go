package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
chain:
  rpc_url: http://127.0.0.1:8545
  chain_id: 31337
exchange:
  clob: "0x0000000000000000000000000000000000000c1b"
market:
  base: "0x0000000000000000000000000000000000000b01"
  quote: "0x0000000000000000000000000000000000000b02"
  tick_size: 100000000
price:
  rest_url: http://127.0.0.1:9000/spot
  symbol: ETHUSDC
  static: "2000"
maker:
  spread_bps: 20
  step_bps: 10
  depth: 3
  quantity: 5000000
  deviation_bps: 500
  interval: 5s
agents:
  - label: flow-1
    strategy: momentum
    quantity: 1000000
    interval: 10s
queue:
  backoff_base: 250ms
  resync_delay: 1s
report:
  interval: 30s
accounts:
  - name: maker
    key_env: TEST_MAKER_KEY
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("TEST_MAKER_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	s, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if s.Chain.ChainID != 31337 {
		t.Fatalf("chain_id=%d", s.Chain.ChainID)
	}
	if s.Maker.Interval.Std() != 5*time.Second {
		t.Fatalf("maker interval=%s", s.Maker.Interval.Std())
	}
	if s.Queue.BackoffBase.Std() != 250*time.Millisecond {
		t.Fatalf("backoff base=%s", s.Queue.BackoffBase.Std())
	}
	// Omitted queue knobs pick up defaults.
	if s.Queue.MaxAttempts != 5 || s.Queue.ResyncEvery != 5 {
		t.Fatalf("queue defaults not applied: %+v", s.Queue)
	}
	if s.Accounts[0].PrivateKey == "" {
		t.Fatalf("private key not read from env")
	}
	if s.Exchange.CLOBAddress().Hex() != "0x0000000000000000000000000000000000000C1b" {
		t.Fatalf("clob address=%s", s.Exchange.CLOBAddress().Hex())
	}
}

func TestLoadRejectsMissingKey(t *testing.T) {
	os.Unsetenv("TEST_MAKER_KEY")
	if _, err := Load(writeConfig(t, validYAML)); err == nil {
		t.Fatalf("expected error for empty key env")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Setenv("TEST_MAKER_KEY", "ab")
	bad := strings.Replace(validYAML, "tick_size:", "tick_sizes:", 1)
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("TEST_MAKER_KEY", "ab")

	cases := []struct {
		name string
		edit func(string) string
	}{
		{"bad clob address", func(s string) string {
			return strings.Replace(s, `clob: "0x0000000000000000000000000000000000000c1b"`, `clob: "not-an-address"`, 1)
		}},
		{"zero depth", func(s string) string {
			return strings.Replace(s, "depth: 3", "depth: 0", 1)
		}},
		{"ladder crosses zero", func(s string) string {
			return strings.Replace(s, "spread_bps: 20", "spread_bps: 9990", 1)
		}},
		{"agent without label", func(s string) string {
			return strings.Replace(s, "label: flow-1", `label: ""`, 1)
		}},
		{"no accounts", func(s string) string {
			return strings.Split(s, "accounts:")[0]
		}},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.edit(validYAML))); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestRPCURLEnvOverride(t *testing.T) {
	t.Setenv("TEST_MAKER_KEY", "ab")
	t.Setenv("RPC_URL", "ws://override:8546")

	s, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Chain.RPCURL != "ws://override:8546" {
		t.Fatalf("rpc url=%s", s.Chain.RPCURL)
	}
}
