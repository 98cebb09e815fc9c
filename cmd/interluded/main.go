// Command interluded runs an Interlude Chain node and its operator tools.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/interlude-gg/interlude-chain/config"
	"github.com/interlude-gg/interlude-chain/consensus"
	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/crypto"
	"github.com/interlude-gg/interlude-chain/crypto/certgen"
	"github.com/interlude-gg/interlude-chain/events"
	"github.com/interlude-gg/interlude-chain/indexer"
	"github.com/interlude-gg/interlude-chain/network"
	"github.com/interlude-gg/interlude-chain/report"
	"github.com/interlude-gg/interlude-chain/rpc"
	"github.com/interlude-gg/interlude-chain/storage"
	"github.com/interlude-gg/interlude-chain/vm"
	"github.com/interlude-gg/interlude-chain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/interlude-gg/interlude-chain/vm/modules/catalog"
	_ "github.com/interlude-gg/interlude-chain/vm/modules/earnings"
	_ "github.com/interlude-gg/interlude-chain/vm/modules/economy"
	_ "github.com/interlude-gg/interlude-chain/vm/modules/sale"
	_ "github.com/interlude-gg/interlude-chain/vm/modules/staking"
	_ "github.com/interlude-gg/interlude-chain/vm/modules/token"
)

var (
	cfgPath string
	keyPath string
)

func main() {
	root := &cobra.Command{
		Use:           "interluded",
		Short:         "Interlude Chain node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "path to config file")
	root.PersistentFlags().StringVar(&keyPath, "key", "validator.key", "path to keystore file")

	root.AddCommand(startCmd(), genKeyCmd(), genCertsCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// keystorePassword reads the keystore password from the environment, never
// from CLI flags (those leak via ps).
func keystorePassword(log *logrus.Logger) string {
	password := os.Getenv("INTERLUDE_PASSWORD")
	if password == "" {
		log.Warn("INTERLUDE_PASSWORD not set, keystore will use an empty password")
	}
	return password
}

func loadConfig(log *logrus.Logger) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", cfgPath).Info("config file not found, using defaults")
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func genKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a validator key and write an encrypted keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()
			w, err := wallet.Generate()
			if err != nil {
				return err
			}
			if err := wallet.SaveKey(keyPath, keystorePassword(log), w.PrivKey()); err != nil {
				return err
			}
			fmt.Printf("Generated key. Validator address: %s\n", w.Address())
			fmt.Printf("Saved to: %s\n", keyPath)
			return nil
		},
	}
}

func genCertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gencerts <dir>",
		Short: "Generate CA and node TLS certificates for mTLS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()
			cfg, err := loadConfig(log)
			if err != nil {
				return err
			}
			if err := certgen.GenerateAll(args[0], cfg.NodeID, nil); err != nil {
				return err
			}
			fmt.Printf("Certificates generated in %s for node %q\n", args[0], cfg.NodeID)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every user's platform account as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()
			cfg, err := loadConfig(log)
			if err != nil {
				return err
			}
			db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			state := storage.NewStateDB(db)
			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return report.WriteCSV(out, state)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

			cfg, err := loadConfig(log)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			privKey, err := wallet.LoadKey(keyPath, keystorePassword(log))
			if err != nil {
				return fmt.Errorf("load key: %w", err)
			}
			return runNode(cfg, privKey, log)
		},
	}
}

func runNode(cfg *config.Config, privKey crypto.PrivateKey, log *logrus.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// One LevelDB instance serves state, blocks and indexes via key prefixes.
	state := storage.NewStateDB(db)
	blockStore := storage.NewLevelBlockStore(db)

	bc := core.NewBlockchain(cfg.Genesis.ChainID, blockStore)
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.WithField("hash", genesisBlock.Hash).Info("genesis block committed")
	}

	emitter := events.NewEmitter(log)
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(state, emitter)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey, log)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		log.Info("mTLS enabled for P2P")
	}

	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, tlsCfg, mempool, log)
	syncer := network.NewSyncer(node, bc, state, exec, poa, log)

	// Gossip locally produced blocks to peers.
	emitter.Subscribe(events.EventBlockCommit, func(ev events.Event) {
		if tip := bc.Tip(); tip != nil && tip.Header.Height == ev.BlockHeight {
			node.BroadcastBlock(tip)
		}
	})

	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()

	for _, addr := range cfg.Peers {
		if err := node.AddPeer(addr, addr); err != nil {
			log.WithError(err).WithField("peer", addr).Warn("seed peer connect failed")
		}
	}
	if node.PeerCount() > 0 {
		syncer.RequestBlocks()
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken, log)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	if cfg.RPCAuthToken != "" {
		log.Info("RPC bearer token authentication enabled")
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(2*time.Second, done)
	}()
	log.WithField("validator", privKey.Public().Hex()).Info("consensus running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	// Stop consensus first so no new blocks are written; the deferred calls
	// then run LIFO: rpcServer.Stop, node.Stop, db.Close.
	close(done)
	wg.Wait()
	return nil
}
