// Package main provides swapnode, a reference daemon that wires the
// Swapper façade and the reconciliation loop to the retained libp2p
// node, wallet, and storage scaffolding. CLI/packaging is not this repo's
// product surface (internal/swapper and internal/reconcile are), so this
// binary stays minimal: it exists to prove the whole engine wires
// together end to end against real dependencies, not to be a full LP or
// wallet product.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/atomiq-core/internal/backend"
	"github.com/klingon-exchange/atomiq-core/internal/chain"
	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/config"
	"github.com/klingon-exchange/atomiq-core/internal/lpclient"
	"github.com/klingon-exchange/atomiq-core/internal/messenger"
	"github.com/klingon-exchange/atomiq-core/internal/node"
	"github.com/klingon-exchange/atomiq-core/internal/priceoracle"
	"github.com/klingon-exchange/atomiq-core/internal/quoteverify"
	"github.com/klingon-exchange/atomiq-core/internal/reconcile"
	"github.com/klingon-exchange/atomiq-core/internal/registry"
	"github.com/klingon-exchange/atomiq-core/internal/storage"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/internal/swapevents"
	"github.com/klingon-exchange/atomiq-core/internal/swapfsm"
	"github.com/klingon-exchange/atomiq-core/internal/swapper"
	"github.com/klingon-exchange/atomiq-core/internal/swapstore"
	"github.com/klingon-exchange/atomiq-core/internal/wallet"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir        = flag.String("data-dir", "~/.atomiq", "Data directory")
		configFile     = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		listenAddr     = flag.String("listen", "", "Listen address (multiaddr), overrides config")
		enableMDNS     = flag.Bool("mdns", true, "Enable mDNS discovery")
		enableDHT      = flag.Bool("dht", true, "Enable DHT discovery")
		testnet        = flag.Bool("testnet", true, "Run on testnet (separate network and data)")
		bootstrapPeers = flag.String("bootstrap", "", "Bootstrap peers (comma-separated multiaddrs)")
		logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")

		evmChainID      = flag.String("evm-chain-id", "sepolia", "Chain id this engine's swaps will carry for the EVM leg")
		evmRPCURL       = flag.String("evm-rpc", "", "EVM JSON-RPC endpoint (required)")
		evmContractAddr = flag.String("evm-contract", "", "KlingonHTLC contract address on the EVM chain (required)")
		lpDirectory     = flag.String("lp-directory", "", "Comma-separated LP directory source URLs to discover intermediaries from")

		walletPassword = flag.String("wallet-password", "", "Password protecting the local wallet seed (required)")
		walletMnemonic = flag.String("wallet-mnemonic", "", "Mnemonic to seed a new wallet with, if one doesn't already exist")

		priceAPIURL = flag.String("price-api-url", "", "HTTP endpoint returning {\"micro_sat_per_unit\":<float>} for ?chain_id=&token=; price-band checks are skipped entirely if unset")

		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("swapnode %s (commit: %s)", version, commit)
		os.Exit(0)
	}
	if *evmRPCURL == "" || *evmContractAddr == "" {
		log.Fatal("--evm-rpc and --evm-contract are required")
	}
	if *walletPassword == "" {
		log.Fatal("--wallet-password is required")
	}

	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	var cfg *node.Config
	var err error
	if *configFile != "" {
		cfg, err = node.LoadConfig(filepath.Dir(*configFile))
	} else {
		cfg, err = node.LoadConfig(effectiveDataDir)
	}
	if err != nil {
		log.Fatal("failed to load node config", "error", err)
	}
	if *listenAddr != "" {
		cfg.Network.ListenAddrs = []string{*listenAddr}
	}
	cfg.Network.EnableMDNS = *enableMDNS
	cfg.Network.EnableDHT = *enableDHT
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = effectiveDataDir
	if *testnet {
		cfg.NetworkType = node.NetworkTestnet
	} else {
		cfg.NetworkType = node.NetworkMainnet
	}
	if *bootstrapPeers != "" {
		cfg.Network.BootstrapPeers = splitCSV(*bootstrapPeers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataPath := expandPath(cfg.Storage.DataDir)
	peerStore, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("failed to initialize peer store", "error", err)
	}
	defer peerStore.Close()

	walletNetwork := chain.Mainnet
	if *testnet {
		walletNetwork = chain.Testnet
	}
	backendRegistry := backend.NewDefaultRegistry(walletNetwork)
	log.Info("backend registry initialized", "network", walletNetwork, "backends", backendRegistry.List())

	walletSvc := wallet.NewService(&wallet.ServiceConfig{
		DataDir:  dataPath,
		Network:  walletNetwork,
		Backends: backendRegistry,
	})
	if err := unlockOrCreateWallet(walletSvc, *walletMnemonic, *walletPassword); err != nil {
		log.Fatal("failed to unlock wallet", "error", err)
	}
	defer walletSvc.Lock()

	evmAddress, err := walletSvc.GetAddress("ETH", 0, 0)
	if err != nil {
		log.Fatal("failed to derive EVM signing address", "error", err)
	}
	btcAddresses, err := walletSvc.GetAllAddresses("BTC", 0, 0)
	if err != nil {
		log.Warn("failed to derive BTC deposit addresses", "error", err)
	}
	log.Info("wallet ready", "evm_address", evmAddress, "btc_addresses", btcAddresses)

	evmKeys := &singleAccountKeySource{svc: walletSvc, symbol: "ETH", depth: 20}
	btcKeys := &singleAccountBTCKeySource{svc: walletSvc, symbol: "BTC", depth: 20}

	evmContract, err := chainadapter.NewEVMAdapter(*evmChainID, *evmRPCURL, common.HexToAddress(*evmContractAddr), evmKeys)
	if err != nil {
		log.Fatal("failed to construct EVM chain adapter", "error", err)
	}

	// The Bitcoin leg never needs a chainadapter.Contract entry of its own
	// (contracts is keyed by the smart-chain side every swap's correlator
	// is rooted on); BitcoinAdapter is still constructed here, signing
	// with the same keys that will later claim or refund on Bitcoin, so a
	// future addition (a BTC-side deposit watcher) has a ready-made escrow
	// implementation to call into.
	btcBackend, ok := backendRegistry.Get("BTC")
	if !ok {
		log.Fatal("no BTC backend registered")
	}
	btcParams, ok := chain.Get("BTC", walletNetwork)
	if !ok {
		log.Fatal("no chain params for BTC")
	}
	btcNet := &chaincfg.TestNet3Params
	if walletNetwork == chain.Mainnet {
		btcNet = &chaincfg.MainNetParams
	}
	_ = chainadapter.NewBitcoinAdapter("bitcoin", btcBackend, btcParams, btcNet, btcKeys)

	contracts := map[string]chainadapter.Contract{
		*evmChainID: evmContract,
	}

	swapDB, err := swapstore.New(swapstore.Config{DataDir: filepath.Join(dataPath, "swaps")})
	if err != nil {
		log.Fatal("failed to open swap store", "error", err)
	}
	defer swapDB.Close()

	bus := swapevents.NewBus(64)

	n, err := node.New(ctx, cfg)
	if err != nil {
		log.Fatal("failed to create p2p node", "error", err)
	}
	peerAdapter := node.NewPeerStoreAdapter(peerStore)
	n.SetPeerStoreAdapter(peerAdapter)
	if err := n.LoadPersistedPeers(); err != nil {
		log.Warn("failed to load persisted peers", "error", err)
	}
	if err := n.Start(); err != nil {
		log.Fatal("failed to start p2p node", "error", err)
	}
	defer n.Stop()

	pubsubMessenger, err := messenger.NewPubSubMessenger(n.PubSub())
	if err != nil {
		log.Fatal("failed to join claim-witness topic", "error", err)
	}
	broadcaster := messenger.FSMBroadcaster{M: pubsubMessenger}
	machines := swapfsm.NewRegistry(broadcaster, cfg.Swap.WatchtowerGraceWindow)

	lpHTTPClient := registry.NewClient(15 * time.Second)
	lpRegistry := registry.New(lpHTTPClient, map[string]registry.ChainVerifier{
		*evmChainID: evmContract,
	})
	if sources := splitCSV(*lpDirectory); len(sources) > 0 {
		if _, err := lpRegistry.Discover(ctx, sources[0], sources[1:]); err != nil {
			log.Warn("initial LP discovery failed", "error", err)
		} else {
			log.Info("LP discovery complete", "intermediaries", len(lpRegistry.All()))
		}
	}

	var oracle *priceoracle.Aggregator
	if *priceAPIURL != "" {
		oracle = priceoracle.NewAggregator([]priceoracle.Provider{httpPriceProvider{url: *priceAPIURL}}, priceoracle.Config{})
	} else {
		log.Warn("--price-api-url not set; quotes will skip the market-price band check entirely")
	}
	verifier := quoteverify.New(quoteverify.DefaultConfig(), oracle, verifierAdapter{evmContract})
	invoiceCodec := lpclient.NewBolt11Codec(btcNet)

	swapperCfg := swapper.DefaultConfig()
	if btcTimeout, ok := config.GetChainTimeout("BTC", *testnet); ok {
		swapperCfg.BTCChainTimeout = btcTimeout
	}

	eng := swapper.New(
		swapDB,
		machines,
		lpRegistry,
		lpclient.NewClient(30*time.Second),
		contracts,
		oracle,
		invoiceCodec,
		verifier,
		bus,
		swapperCfg,
	)

	loop := reconcile.New(swapDB, machines, contracts, func(*swapcore.Swap) string { return evmAddress }, bus, reconcile.DefaultConfig())
	if err := loop.Start(ctx); err != nil {
		log.Fatal("failed to start reconciliation loop", "error", err)
	}
	defer loop.Stop()

	log.Info("swapnode ready", "peer_id", n.ID().String(), "evm_chain", *evmChainID)

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			log.Info("swap event", "id", ev.Swap.ID, "kind", ev.Kind)
		}
	}()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				actionable, err := eng.GetActionableSwaps(evmAddress)
				if err != nil {
					log.Warn("status: failed to list actionable swaps", "error", err)
					continue
				}
				log.Info("status", "peers", n.PeerCount(), "uptime", n.Uptime().Round(time.Second), "actionable_swaps", len(actionable))
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")
	if err := n.SavePeerCache(); err != nil {
		log.Error("error saving peer cache", "error", err)
	}
	cancel()
	log.Info("goodbye!")
}

func unlockOrCreateWallet(svc *wallet.Service, mnemonic, password string) error {
	if svc.HasWallet() {
		return svc.LoadWallet(password, "")
	}
	if mnemonic == "" {
		m, err := svc.GenerateMnemonic()
		if err != nil {
			return fmt.Errorf("generate mnemonic: %w", err)
		}
		mnemonic = m
		logging.GetDefault().Warn("generated a new wallet mnemonic; back it up now, it will not be shown again", "mnemonic", mnemonic)
	}
	return svc.CreateWallet(mnemonic, "", password)
}

// singleAccountKeySource adapts wallet.Service to chainadapter.KeySource,
// scanning account 0's first depth receive addresses for a match (this
// reference binary only ever signs from addresses it itself derived).
type singleAccountKeySource struct {
	svc    *wallet.Service
	symbol string
	depth  uint32
}

func (k *singleAccountKeySource) PrivateKeyFor(address string) (*ecdsa.PrivateKey, error) {
	for i := uint32(0); i < k.depth; i++ {
		addr, err := k.svc.GetAddress(k.symbol, 0, i)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(addr, address) {
			priv, err := k.svc.GetPrivateKey(k.symbol, 0, i)
			if err != nil {
				return nil, err
			}
			return wallet.ToECDSA(priv), nil
		}
	}
	return nil, fmt.Errorf("swapnode: address %s not controlled by this wallet", address)
}

// singleAccountBTCKeySource is singleAccountKeySource's Bitcoin-family
// counterpart, matching across every address type GetAllAddresses derives
// since a P2WPKH and P2TR address at the same index share one private key.
type singleAccountBTCKeySource struct {
	svc    *wallet.Service
	symbol string
	depth  uint32
}

func (k *singleAccountBTCKeySource) PrivateKeyFor(address string) (*btcec.PrivateKey, error) {
	for i := uint32(0); i < k.depth; i++ {
		addrs, err := k.svc.GetAllAddresses(k.symbol, 0, i)
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			if addr == address {
				return k.svc.GetPrivateKey(k.symbol, 0, i)
			}
		}
	}
	return nil, fmt.Errorf("swapnode: address %s not controlled by this wallet", address)
}

// verifierAdapter narrows a chainadapter.Contract down to
// quoteverify.ChainVerifier, translating chainadapter.CommitStatus into
// quoteverify's own narrower CommitStatus (state only; the verifier never
// needs the claim/refund tx ids a full CommitStatus also carries).
type verifierAdapter struct {
	chainadapter.Contract
}

func (v verifierAdapter) GetCommitStatus(ctx context.Context, signer string, data *swapcore.SwapData) (quoteverify.CommitStatus, error) {
	status, err := v.Contract.GetCommitStatus(ctx, signer, data)
	if err != nil {
		return quoteverify.CommitStatus{}, err
	}
	return quoteverify.CommitStatus{State: quoteverify.CommitState(status.State)}, nil
}

// httpPriceProvider is a minimal priceoracle.Provider backed by one
// operator-supplied HTTP endpoint. No price-feed client library appears
// anywhere in this engine's dependency corpus, so this stays on net/http
// rather than reaching for an unproven one.
type httpPriceProvider struct {
	url string
}

func (httpPriceProvider) Name() string { return "http" }

func (p httpPriceProvider) MicroSatPerUnit(ctx context.Context, chainID, tokenAddress string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, err
	}
	q := req.URL.Query()
	q.Set("chain_id", chainID)
	q.Set("token", tokenAddress)
	req.URL.RawQuery = q.Encode()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price endpoint returned %s", resp.Status)
	}

	var body struct {
		MicroSatPerUnit float64 `json:"micro_sat_per_unit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}
	return body.MicroSatPerUnit, nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
