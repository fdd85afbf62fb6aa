package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/robik3456/tradebot/pkg/models"
)

// Journal is the append-only trade record the loop writes to. Entries are
// never mutated or deleted once appended.
type Journal interface {
	Append(entry models.LedgerEntry) error
	Recent(n int) []models.LedgerEntry
	Close() error
}

var header = []string{
	"timestamp", "symbol", "action", "price", "amount",
	"balance_before", "balance_after", "reason",
}

const timeLayout = "2006-01-02 15:04:05"

// keep this many entries in memory for the status API
const recentCap = 256

// CSVLedger appends one row per executed trade to a CSV file, creating it
// with a header when absent. Appends are flushed immediately and serialized
// by a mutex so parallel symbol processing stays safe.
type CSVLedger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	recent []models.LedgerEntry
}

func OpenCSV(path string) (*CSVLedger, error) {
	_, statErr := os.Stat(path)
	needHeader := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening trade ledger %s: %w", path, err)
	}

	l := &CSVLedger{
		file:   file,
		writer: csv.NewWriter(file),
	}

	if needHeader {
		if err := l.writer.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("writing ledger header: %w", err)
		}
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("flushing ledger header: %w", err)
		}
	}
	return l, nil
}

func (l *CSVLedger) Append(entry models.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		entry.Time.UTC().Format(timeLayout),
		entry.Symbol,
		string(entry.Action),
		formatFloat(entry.Price),
		formatFloat(entry.Amount),
		formatFloat(entry.BalanceBefore),
		formatFloat(entry.BalanceAfter),
		entry.Reason,
	}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("appending ledger entry for %s: %w", entry.Symbol, err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flushing ledger entry for %s: %w", entry.Symbol, err)
	}

	l.recent = append(l.recent, entry)
	if len(l.recent) > recentCap {
		l.recent = l.recent[len(l.recent)-recentCap:]
	}
	return nil
}

// Recent returns up to n of the most recently appended entries, oldest
// first. Only entries from this process lifetime are visible.
func (l *CSVLedger) Recent(n int) []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]models.LedgerEntry, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
