// Package config loads the bot's YAML configuration, layers environment
// overrides for secrets on top, and validates the result into an immutable
// Snapshot. Reloads produce a whole new Snapshot; nothing mutates in place.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Duration parses YAML scalars like "5s" or "1m30s". Bare integers count as
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if n, err := time.ParseDuration(s); err == nil {
		*d = Duration(n)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration %q", s)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Snapshot is one validated configuration. Workers receive it by value and
// never see partial updates.
type Snapshot struct {
	Chain    Chain     `yaml:"chain"`
	Exchange Exchange  `yaml:"exchange"`
	Market   Market    `yaml:"market"`
	Price    Price     `yaml:"price"`
	Maker    Maker     `yaml:"maker"`
	Agents   []Agent   `yaml:"agents"`
	Queue    Queue     `yaml:"queue"`
	Report   Report    `yaml:"report"`
	TxLog    TxLog     `yaml:"txlog"`
	Accounts []Account `yaml:"accounts"`
}

type Chain struct {
	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`
}

type Exchange struct {
	CLOB string `yaml:"clob"`
}

type Market struct {
	Base     string `yaml:"base"`
	Quote    string `yaml:"quote"`
	TickSize uint64 `yaml:"tick_size"`
}

type Price struct {
	StreamURL string `yaml:"stream_url"`
	RESTURL   string `yaml:"rest_url"`
	Symbol    string `yaml:"symbol"`
	Feed      string `yaml:"feed"`

	// Static is a decimal string, e.g. "2000.5"; empty disables the fallback.
	Static string `yaml:"static"`
}

type Maker struct {
	SpreadBps    uint64   `yaml:"spread_bps"`
	StepBps      uint64   `yaml:"step_bps"`
	Depth        int      `yaml:"depth"`
	Quantity     uint64   `yaml:"quantity"`
	DeviationBps uint64   `yaml:"deviation_bps"`
	Interval     Duration `yaml:"interval"`
}

type Agent struct {
	Label    string   `yaml:"label"`
	Strategy string   `yaml:"strategy"`
	Quantity uint64   `yaml:"quantity"`
	Interval Duration `yaml:"interval"`
}

type Queue struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BackoffBase Duration `yaml:"backoff_base"`
	ResyncEvery int      `yaml:"resync_every"`
	ResyncDelay Duration `yaml:"resync_delay"`
}

type Report struct {
	Interval  Duration `yaml:"interval"`
	JSONLPath string   `yaml:"jsonl_path"`
}

type TxLog struct {
	Path string `yaml:"path"`
}

// Account names one signing key. The key itself never lives in the YAML
// file; KeyEnv names the environment variable that holds it.
type Account struct {
	Name   string `yaml:"name"`
	KeyEnv string `yaml:"key_env"`

	// PrivateKey is populated from the environment after load.
	PrivateKey string `yaml:"-"`
}

// Load reads the YAML file, applies environment overrides, and validates.
func Load(path string) (Snapshot, error) {
	var s Snapshot

	raw, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}

	s.applyEnv()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

// applyEnv layers secrets and endpoint overrides from the environment.
func (s *Snapshot) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		s.Chain.RPCURL = v
	}
	for i := range s.Accounts {
		envName := s.Accounts[i].KeyEnv
		if envName == "" {
			envName = "PRIVATE_KEY"
		}
		s.Accounts[i].PrivateKey = strings.TrimSpace(os.Getenv(envName))
	}
}

// Validate rejects a snapshot the bot cannot run with. Defaults for optional
// knobs are filled here so downstream code sees final values.
func (s *Snapshot) Validate() error {
	if strings.TrimSpace(s.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if s.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be positive")
	}
	if !common.IsHexAddress(s.Exchange.CLOB) {
		return fmt.Errorf("exchange.clob %q is not an address", s.Exchange.CLOB)
	}
	if !common.IsHexAddress(s.Market.Base) {
		return fmt.Errorf("market.base %q is not an address", s.Market.Base)
	}
	if !common.IsHexAddress(s.Market.Quote) {
		return fmt.Errorf("market.quote %q is not an address", s.Market.Quote)
	}
	if s.Market.TickSize == 0 {
		s.Market.TickSize = 1
	}

	if s.Maker.Depth <= 0 {
		return fmt.Errorf("maker.depth must be positive")
	}
	if s.Maker.Quantity == 0 {
		return fmt.Errorf("maker.quantity must be positive")
	}
	if s.Maker.SpreadBps+s.Maker.StepBps*uint64(s.Maker.Depth-1) >= 10_000 {
		return fmt.Errorf("maker ladder offsets reach 100%%")
	}
	if s.Maker.Interval <= 0 {
		s.Maker.Interval = Duration(5 * time.Second)
	}

	if s.Price.Feed != "" && !common.IsHexAddress(s.Price.Feed) {
		return fmt.Errorf("price.feed %q is not an address", s.Price.Feed)
	}

	for i, a := range s.Agents {
		if a.Label == "" {
			return fmt.Errorf("agents[%d].label is required", i)
		}
		if a.Strategy == "" {
			return fmt.Errorf("agent %s: strategy is required", a.Label)
		}
		if a.Quantity == 0 {
			return fmt.Errorf("agent %s: quantity must be positive", a.Label)
		}
		if a.Interval <= 0 {
			s.Agents[i].Interval = Duration(10 * time.Second)
		}
	}

	if s.Queue.MaxAttempts <= 0 {
		s.Queue.MaxAttempts = 5
	}
	if s.Queue.BackoffBase <= 0 {
		s.Queue.BackoffBase = Duration(time.Second)
	}
	if s.Queue.ResyncEvery <= 0 {
		s.Queue.ResyncEvery = 5
	}
	if s.Queue.ResyncDelay <= 0 {
		s.Queue.ResyncDelay = Duration(2 * time.Second)
	}

	if s.Report.Interval <= 0 {
		s.Report.Interval = Duration(time.Minute)
	}

	if len(s.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	seen := make(map[string]bool, len(s.Accounts))
	for _, a := range s.Accounts {
		if a.Name == "" {
			return fmt.Errorf("every account needs a name")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate account name %q", a.Name)
		}
		seen[a.Name] = true
		if a.PrivateKey == "" {
			env := a.KeyEnv
			if env == "" {
				env = "PRIVATE_KEY"
			}
			return fmt.Errorf("account %s: private key env %s is empty", a.Name, env)
		}
	}
	return nil
}

// Addresses that passed Validate convert without error.

func (e Exchange) CLOBAddress() common.Address { return common.HexToAddress(e.CLOB) }
func (m Market) BaseAddress() common.Address   { return common.HexToAddress(m.Base) }
func (m Market) QuoteAddress() common.Address  { return common.HexToAddress(m.Quote) }
func (p Price) FeedAddress() common.Address    { return common.HexToAddress(p.Feed) }
