package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// RunArchive keeps one directory per run: metadata.json plus energies.csv.
type RunArchive struct {
	baseDir string
}

func NewRunArchive(baseDir string) *RunArchive {
	return &RunArchive{baseDir: baseDir}
}

func (s *RunArchive) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string    `json:"id"`
	Preset      string    `json:"preset"`
	RecordID    string    `json:"record_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Seed        int64     `json:"seed"`
	Steps       int       `json:"steps"`
	KT          float64   `json:"kt"`
	Box         float64   `json:"box"`
	Device      string    `json:"device"`
	Accepted    uint64    `json:"accepted"`
	Rejected    uint64    `json:"rejected"`
	FinalEnergy float64   `json:"final_energy"`

	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Save writes meta and the per-step energies and returns the run id.
func (s *RunArchive) Save(meta RunMetadata, energies []float64) (string, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%d", meta.Preset, meta.Timestamp.UnixNano())
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "energies.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write([]string{"step", "energy"}); err != nil {
		return "", err
	}
	for i, e := range energies {
		row := []string{strconv.Itoa(i + 1), strconv.FormatFloat(e, 'g', -1, 64)}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

func (s *RunArchive) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })

	return runs, nil
}

func (s *RunArchive) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadEnergies returns the energy column of a saved run.
func (s *RunArchive) LoadEnergies(runID string) ([]float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "energies.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []float64{}, nil
	}

	energies := make([]float64, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < 2 {
			continue
		}
		e, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		energies = append(energies, e)
	}
	return energies, nil
}
