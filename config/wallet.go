package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/viant/afs"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/model"
)

// DefaultChain reads the "default" chain id from the wallet document at URL.
// The wallet may not exist yet while the service initialises, so missing,
// unreadable or incomplete documents are retried every poll until timeout.
func DefaultChain(ctx context.Context, fs afs.Service, URL string, timeout, poll time.Duration) (string, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var lastErr error
	for {
		chainID, err := readDefaultChain(ctx, fs, URL)
		if err == nil {
			return chainID, nil
		}
		lastErr = err
		if clock.Sleep(ctx, poll) != nil {
			return "", fmt.Errorf("%w: wallet default chain: %v", model.ErrTimeout, lastErr)
		}
	}
}

func readDefaultChain(ctx context.Context, fs afs.Service, URL string) (string, error) {
	ok, err := fs.Exists(ctx, URL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("wallet %v does not exist", URL)
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("wallet %v is not valid JSON", URL)
	}
	chainID := strings.TrimSpace(gjson.GetBytes(data, "default").String())
	if chainID == "" {
		return "", fmt.Errorf("wallet %v has no default chain", URL)
	}
	return chainID, nil
}
