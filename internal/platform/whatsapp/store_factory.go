package whatsapp

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"
)

const deviceStoreFile = "account.db"

// StoreFactory abre o container sqlstore da conta única.
type StoreFactory struct {
	baseDir string
	log     waLog.Logger
	mu      sync.Mutex // Protege criação do store para evitar race conditions
}

func NewStoreFactory(baseDir string, log waLog.Logger) *StoreFactory {
	if log == nil {
		log = waLog.Noop
	}
	return &StoreFactory{baseDir: baseDir, log: log}
}

func (f *StoreFactory) EnsureDir() error {
	return os.MkdirAll(f.baseDir, 0o755)
}

func (f *StoreFactory) NewDeviceStore(ctx context.Context) (*sqlstore.Container, error) {
	// Lock para evitar múltiplas inicializações simultâneas do mesmo banco
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.EnsureDir(); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(f.baseDir, deviceStoreFile)
	// modernc.org/sqlite driver name is "sqlite" with optimized settings for concurrency
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	container, err := sqlstore.New(ctx, "sqlite", dsn, f.log.Sub("DB"))
	if err != nil {
		return nil, err
	}
	return container, nil
}
