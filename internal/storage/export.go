package storage

import (
	"encoding/json"
	"io"
	"os"
)

// ExportData is the self-contained JSON form of one archived run.
type ExportData struct {
	Run      RunMetadata `json:"run"`
	Energies []float64   `json:"energies"`
	Steps    int         `json:"steps"`
	// Potential is the record the run's potential was saved as, if any.
	Potential *Record `json:"potential,omitempty"`
}

func ExportJSON(w io.Writer, meta RunMetadata, energies []float64, potential *Record) error {
	data := ExportData{
		Run:       meta,
		Energies:  energies,
		Steps:     len(energies),
		Potential: potential,
	}
	if data.Energies == nil {
		data.Energies = []float64{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSONFile(path string, meta RunMetadata, energies []float64, potential *Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ExportJSON(file, meta, energies, potential); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
