package node

import (
	"fmt"
	"io"

	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/contentstore"
	"github.com/tendermint/reviewattest/internal/contentstore/ipfs"
	"github.com/tendermint/reviewattest/internal/contentstore/local"
	"github.com/tendermint/reviewattest/internal/delivery"
	"github.com/tendermint/reviewattest/internal/ledger"
	"github.com/tendermint/reviewattest/internal/ledger/contract"
	"github.com/tendermint/reviewattest/internal/rating"
	"github.com/tendermint/reviewattest/internal/review"
	"github.com/tendermint/reviewattest/internal/store"
	"github.com/tendermint/reviewattest/internal/store/kv"
	"github.com/tendermint/reviewattest/internal/store/psql"
	"github.com/tendermint/reviewattest/libs/log"
)

// database IDs under the db-dir
const (
	storeDBID   = "attest"
	contentDBID = "content"
	ledgerDBID  = "ledger"
)

// DurableStore is a store.Store the node owns and closes.
type DurableStore interface {
	store.Store
	io.Closer
}

// OpenStore opens the durable store selected by cfg.Store, installing the
// schema first for the psql backend.
func OpenStore(cfg *config.Config, dbProvider config.DBProvider, logger log.Logger) (DurableStore, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPsql:
		s, err := psql.NewStore(cfg.Store.PsqlConn)
		if err != nil {
			return nil, fmt.Errorf("opening psql store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating psql store: %w", err)
		}
		logger.Info("using psql store")
		return s, nil
	default:
		db, err := dbProvider(&config.DBContext{ID: storeDBID, Config: cfg})
		if err != nil {
			return nil, fmt.Errorf("opening kv store: %w", err)
		}
		logger.Info("using kv store", "backend", cfg.DBBackend, "dir", cfg.DBDir())
		return kv.NewStore(db), nil
	}
}

// openContentStore returns the content store and, for the local backend,
// the database to close on shutdown.
func openContentStore(cfg *config.Config, dbProvider config.DBProvider, logger log.Logger) (contentstore.Store, dbm.DB, error) {
	switch cfg.ContentStore.Backend {
	case config.ContentStoreIPFS:
		c, err := ipfs.NewClient(cfg.ContentStore.IPFSAddress, logger.With("module", "ipfs"))
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		db, err := dbProvider(&config.DBContext{ID: contentDBID, Config: cfg})
		if err != nil {
			return nil, nil, fmt.Errorf("opening content store: %w", err)
		}
		return local.NewStore(db), db, nil
	}
}

// openLedger returns the ledger client and, in embedded mode, the database
// of the contract.
func openLedger(
	cfg *config.Config,
	dbProvider config.DBProvider,
	signer ledger.Signer,
	logger log.Logger,
) (ledger.Client, dbm.DB, error) {
	switch cfg.Ledger.Mode {
	case config.LedgerModeRemote:
		c, err := ledger.NewHTTPClient(cfg.Ledger.RemoteAddress, signer, logger.With("module", "ledger-client"))
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		db, err := dbProvider(&config.DBContext{ID: ledgerDBID, Config: cfg})
		if err != nil {
			return nil, nil, fmt.Errorf("opening ledger db: %w", err)
		}
		c, err := contract.New(db, signer.PubKey(), logger.With("module", "contract"))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return contract.NewLocalClient(c, signer), db, nil
	}
}

type nodeMetrics struct {
	delivery *delivery.Metrics
	review   *review.Metrics
	rating   *rating.Metrics
}

func defaultMetricsProvider(cfg *config.InstrumentationConfig) *nodeMetrics {
	if cfg.Prometheus {
		return &nodeMetrics{
			delivery: delivery.PrometheusMetrics(cfg.Namespace),
			review:   review.PrometheusMetrics(cfg.Namespace),
			rating:   rating.PrometheusMetrics(cfg.Namespace),
		}
	}
	return &nodeMetrics{
		delivery: delivery.NopMetrics(),
		review:   review.NopMetrics(),
		rating:   rating.NopMetrics(),
	}
}
