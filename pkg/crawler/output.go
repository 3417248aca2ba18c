package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/webscout/pkg/analyze"
	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/report"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

// FindingsRecord is one line of the findings JSONL file
type FindingsRecord struct {
	URL           string            `json:"url"`
	Depth         int               `json:"depth"`
	PatternsFound int               `json:"patterns_found"`
	Sections      []analyze.Section `json:"sections"`
	LinksFound    int               `json:"links_found"`
	ContentHash   string            `json:"content_hash"`
	CrawledAt     string            `json:"crawled_at"`
}

// OutputManager owns the crawl-level output files: the findings JSONL stream,
// the YAML metadata and the Markdown summary written at Close.
type OutputManager struct {
	log       *logrus.Entry
	cfg       *config.AppConfig
	outputDir string

	// JSONL output
	jsonlFile     *os.File
	jsonlFileMu   sync.Mutex
	jsonlFilePath string

	// Metadata
	pages         []models.PageMetadata
	patternCounts map[string]int
	metadataMutex sync.Mutex
}

// NewOutputManager creates an OutputManager without opening files.
// Call OpenFiles once the output directory exists.
func NewOutputManager(log *logrus.Entry, cfg *config.AppConfig) *OutputManager {
	return &OutputManager{
		log:           log,
		cfg:           cfg,
		outputDir:     cfg.OutputDir,
		pages:         make([]models.PageMetadata, 0),
		patternCounts: make(map[string]int),
	}
}

// OpenFiles truncates and opens the findings JSONL file if enabled.
// A file that cannot be opened disables JSONL output for the run.
func (om *OutputManager) OpenFiles() {
	if !om.cfg.FindingsJSONLEnabled() {
		om.log.Debug("Findings JSONL output is disabled.")
		return
	}
	om.jsonlFilePath = filepath.Join(om.outputDir, om.cfg.FindingsFilename)
	file, err := os.OpenFile(om.jsonlFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		om.log.Errorf("Failed to open/create findings file '%s': %v. JSONL output will be disabled.", om.jsonlFilePath, err)
		return
	}
	om.jsonlFile = file
	om.log.Infof("Findings JSONL output: %s", om.jsonlFilePath)
}

// RecordPage collects the metadata of one processed page and, for analyzed pages,
// appends a findings line to the JSONL file.
func (om *OutputManager) RecordPage(meta models.PageMetadata, result *analyze.Result, taskLog *logrus.Entry) {
	om.metadataMutex.Lock()
	om.pages = append(om.pages, meta)
	if result != nil {
		for _, name := range result.PatternNames() {
			om.patternCounts[name]++
		}
	}
	om.metadataMutex.Unlock()

	if result == nil {
		return
	}
	om.writeToJSONLFile(FindingsRecord{
		URL:           meta.URL,
		Depth:         meta.Depth,
		PatternsFound: result.PatternsFound(),
		Sections:      result.Sections,
		LinksFound:    meta.LinksFound,
		ContentHash:   meta.ContentHash,
		CrawledAt:     meta.ProcessedAt.Format(time.RFC3339),
	}, taskLog)
}

// PagesRecorded returns the number of pages whose metadata has been collected.
func (om *OutputManager) PagesRecorded() int {
	om.metadataMutex.Lock()
	defer om.metadataMutex.Unlock()
	return len(om.pages)
}

// writeToJSONLFile writes a findings record to the JSONL output file (if enabled and open).
func (om *OutputManager) writeToJSONLFile(rec FindingsRecord, taskLog *logrus.Entry) {
	om.jsonlFileMu.Lock()
	defer om.jsonlFileMu.Unlock()

	if om.jsonlFile == nil {
		return
	}
	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		taskLog.WithField("jsonl_file", om.jsonlFilePath).Errorf("Failed to marshal findings to JSON: %v", err)
		return
	}
	if _, err := om.jsonlFile.Write(append(jsonBytes, '\n')); err != nil {
		taskLog.WithField("jsonl_file", om.jsonlFilePath).Errorf("Failed to write to findings file: %v", err)
	}
}

// Close syncs and closes the JSONL file, then writes the metadata YAML and the summary.
// meta carries the run-level fields; pages and pattern counts are filled in here.
// The first write error is returned after every output has been attempted.
func (om *OutputManager) Close(meta *models.CrawlMetadata) error {
	om.closeJSONLFile()

	om.metadataMutex.Lock()
	meta.Pages = make([]models.PageMetadata, len(om.pages))
	copy(meta.Pages, om.pages)
	meta.PatternCounts = make(map[string]int, len(om.patternCounts))
	for k, v := range om.patternCounts {
		meta.PatternCounts[k] = v
	}
	om.metadataMutex.Unlock()

	var firstErr error
	if err := om.writeMetadataYAML(meta); err != nil {
		firstErr = err
	}
	if om.cfg.SummaryEnabled() {
		path := filepath.Join(om.outputDir, om.cfg.SummaryFilename)
		if err := report.WriteSummaryFile(path, meta); err != nil {
			om.log.Errorf("Failed to write crawl summary '%s': %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			om.log.Infof("Wrote crawl summary to %s", path)
		}
	}
	return firstErr
}

// closeJSONLFile closes the JSONL output file handle if it was opened.
func (om *OutputManager) closeJSONLFile() {
	om.jsonlFileMu.Lock()
	defer om.jsonlFileMu.Unlock()

	if om.jsonlFile == nil {
		return
	}
	if err := om.jsonlFile.Sync(); err != nil {
		om.log.Errorf("Error syncing findings file '%s': %v", om.jsonlFilePath, err)
	}
	if err := om.jsonlFile.Close(); err != nil {
		om.log.Errorf("Error closing findings file '%s': %v", om.jsonlFilePath, err)
	}
	om.jsonlFile = nil
}

// writeMetadataYAML writes the crawl metadata to a YAML file.
func (om *OutputManager) writeMetadataYAML(meta *models.CrawlMetadata) error {
	if !om.cfg.MetadataYAMLEnabled() {
		om.log.Debug("YAML metadata output is disabled.")
		return nil
	}
	yamlFilePath := filepath.Join(om.outputDir, om.cfg.MetadataFilename)

	yamlData, errMarshal := yaml.Marshal(meta)
	if errMarshal != nil {
		om.log.Errorf("Failed to marshal crawl metadata to YAML: %v", errMarshal)
		return fmt.Errorf("%w: failed to marshal YAML crawl metadata: %w", utils.ErrParsing, errMarshal)
	}
	if errWrite := os.WriteFile(yamlFilePath, yamlData, 0644); errWrite != nil {
		om.log.Errorf("Failed to write metadata YAML file '%s': %v", yamlFilePath, errWrite)
		return fmt.Errorf("%w: failed to write metadata YAML file '%s': %w", utils.ErrIO, yamlFilePath, errWrite)
	}

	om.log.Infof("Wrote crawl metadata (%d pages) to %s", len(meta.Pages), yamlFilePath)
	return nil
}
