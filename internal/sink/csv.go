// Package sink persists a finished harvest.
package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maltedev/basket-harvester/internal/models"
)

var ErrNoColumns = errors.New("no columns to write")

// CSV writes records as a comma-separated file. The file is written under a
// temporary name and renamed into place, so the destination only ever holds a
// complete artifact.
type CSV struct {
	path    string
	columns []string
	logger  *slog.Logger
}

func NewCSV(path string, columns []string) *CSV {
	return &CSV{
		path:    path,
		columns: columns,
		logger:  slog.Default().With("component", "csv_sink"),
	}
}

func (s *CSV) Location() string {
	return s.path
}

func (s *CSV) Persist(ctx context.Context, run *models.HarvestRun, records []models.ProductRecord) error {
	columns := s.columns
	if len(columns) == 0 {
		columns = run.Columns
	}
	if len(columns) == 0 {
		return ErrNoColumns
	}

	if err := writeAtomic(s.path, func(f *os.File) error {
		return writeRows(f, columns, records)
	}); err != nil {
		return err
	}

	if len(records) == 0 {
		s.logger.Warn("no products scraped, wrote header only", "path", s.path)
	} else {
		s.logger.Info("harvest written", "path", s.path, "rows", len(records))
	}

	return nil
}

func writeRows(f *os.File, columns []string, records []models.ProductRecord) error {
	w := csv.NewWriter(f)

	if err := w.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range records {
		if err := w.Write(records[i].Row(columns)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return nil
}

func writeAtomic(path string, write func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return nil
}
