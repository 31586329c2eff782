package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logger "github.com/sirupsen/logrus"
)

// ErrNoWindow is returned when the cache document holds no window for the
// requested asset code.
var ErrNoWindow = errors.New("no cached historical net window for asset")

// document is the on-disk shape of the cache: one top-level key mapping
// asset code to a JSON-encoded array string of net positions, most recent
// first.
type document struct {
	RecentCommercialHistoricalNets map[string]string `json:"recent_commercial_historical_nets"`
}

// HistoricalNetCache is the single on-disk document holding the most
// recent historical net window per asset. Every read-modify-write runs
// under one mutex: the document is rewritten whole, and uncoordinated
// concurrent writers would lose data.
type HistoricalNetCache struct {
	mu   sync.Mutex
	path string
}

// New builds a cache over the document at path. The file is not touched
// until the first operation.
func New(path string) *HistoricalNetCache {
	return &HistoricalNetCache{path: path}
}

// Window returns the cached historical net window for the asset, most
// recent first.
func (c *HistoricalNetCache) Window(assetCode string) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	return doc.window(assetCode)
}

// PrependNet slides the asset's cached window one week forward: the oldest
// entry is dropped, net is inserted in front, and the document is written
// back. The updated window is returned.
func (c *HistoricalNetCache) PrependNet(assetCode string, net int) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	window, err := doc.window(assetCode)
	if err != nil {
		return nil, err
	}
	if len(window) > 0 {
		window = window[:len(window)-1]
	}
	window = append([]int{net}, window...)
	if err := doc.setWindow(assetCode, window); err != nil {
		return nil, err
	}
	if err := c.store(doc); err != nil {
		return nil, err
	}
	return window, nil
}

// ReplaceAll overwrites the cached window of every asset in windows and
// writes the document back in one atomic step. A missing or corrupt
// document is logged and reset to empty rather than failing the refresh.
func (c *HistoricalNetCache) ReplaceAll(windows map[string][]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "HistoricalNetCache",
			"path":      c.path,
		}).WithError(err).Error("Couldn't load the cache document, overriding it instead")
		doc = &document{}
	}
	if doc.RecentCommercialHistoricalNets == nil {
		doc.RecentCommercialHistoricalNets = map[string]string{}
	}
	for assetCode, window := range windows {
		if err := doc.setWindow(assetCode, window); err != nil {
			return err
		}
	}
	return c.store(doc)
}

func (c *HistoricalNetCache) load() (*document, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read cache document: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode cache document: %w", err)
	}
	return &doc, nil
}

// store rewrites the document whole, through a temp file and rename so a
// crashed write never leaves a truncated document behind.
func (c *HistoricalNetCache) store(doc *document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cache document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cache-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache document: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache document: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache document: %w", err)
	}
	return nil
}

func (d *document) window(assetCode string) ([]int, error) {
	encoded, ok := d.RecentCommercialHistoricalNets[assetCode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoWindow, assetCode)
	}
	var window []int
	if err := json.Unmarshal([]byte(encoded), &window); err != nil {
		return nil, fmt.Errorf("decode window of %q: %w", assetCode, err)
	}
	return window, nil
}

func (d *document) setWindow(assetCode string, window []int) error {
	encoded, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("encode window of %q: %w", assetCode, err)
	}
	if d.RecentCommercialHistoricalNets == nil {
		d.RecentCommercialHistoricalNets = map[string]string{}
	}
	d.RecentCommercialHistoricalNets[assetCode] = string(encoded)
	return nil
}
