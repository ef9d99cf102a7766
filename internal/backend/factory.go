package backend

import (
	"context"
	"fmt"
	"log/slog"

	"soldi/internal/config"
	remoteamqp "soldi/internal/remote/amqp"
	"soldi/internal/remote/memory"
	"soldi/internal/remote/sheets"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(cfg *config.Config, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context) (*Result, error) {
	t := Type(f.cfg.RemoteBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", t)
	}

	switch t {
	case MemoryBackend:
		return f.createMemoryBackend()
	case SheetsBackend:
		return f.createSheetsBackend(ctx)
	case AMQPBackend:
		return f.createAMQPBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", t)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*Result, error) {
	f.logger.Info("Initialized memory backend")
	return &Result{
		Repo:    memory.New(),
		Cleanup: nil,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context) (*Result, error) {
	cli, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   f.cfg.GoogleSpreadsheetID,
		CredentialsJSON: f.cfg.GoogleCredentialsJSON,
		CredentialsFile: f.cfg.GoogleCredentialsFile,
		SheetFor:        map[string]string{"transactions": f.cfg.GoogleSheetName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", f.cfg.GoogleSpreadsheetID,
		"sheet", f.cfg.GoogleSheetName)

	return &Result{
		Repo:    cli,
		Cleanup: nil,
	}, nil
}

func (f *DefaultFactory) createAMQPBackend() (*Result, error) {
	cli, err := remoteamqp.NewClient(f.cfg.AMQPURL, f.cfg.AMQPExchange, f.cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}

	f.logger.Info("Initialized AMQP backend",
		"exchange", f.cfg.AMQPExchange,
		"queue", f.cfg.AMQPQueue)

	return &Result{
		Repo:    cli,
		Cleanup: cli.Close,
	}, nil
}
