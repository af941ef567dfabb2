package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
)

const historyDir = "test_history"

// TestHistoryRepository appends test runs to one JSON lines file per automation.
type TestHistoryRepository struct {
	root string
	mu   sync.Mutex
}

func NewTestHistoryRepository(root string) *TestHistoryRepository {
	return &TestHistoryRepository{root: root}
}

func (hr *TestHistoryRepository) Append(_ context.Context, record *models.TestHistoryRecord) error {
	filePath, err := docPath(hr.root, record.AppID, historyDir, record.AutomationID, ".jsonl")
	if err != nil {
		return err
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal test history record: %w", err)
	}

	hr.mu.Lock()
	defer hr.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return fmt.Errorf("failed to create test history directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Clean(filePath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open test history: %w", err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to append test history: %w", err)
	}

	return f.Close()
}

func (hr *TestHistoryRepository) List(_ context.Context, appID, automationID string) ([]*models.TestHistoryRecord, error) {
	filePath, err := docPath(hr.root, appID, historyDir, automationID, ".jsonl")
	if err != nil {
		return nil, err
	}

	hr.mu.Lock()
	defer hr.mu.Unlock()

	f, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		if os.IsNotExist(err) {
			return make([]*models.TestHistoryRecord, 0), nil
		}

		return nil, fmt.Errorf("failed to open test history: %w", err)
	}
	defer f.Close()

	records := make([]*models.TestHistoryRecord, 0)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		var record models.TestHistoryRecord

		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal test history record: %w", err)
		}

		records = append(records, &record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test history: %w", err)
	}

	slices.Reverse(records)

	return records, nil
}
