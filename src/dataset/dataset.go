// Package dataset reads power series from CSV files and writes predictions
// back out.
//
// Input files have two columns, timestamp and power. Timestamps are RFC 3339
// or Unix seconds, and are written with nanosecond precision. A file whose
// timestamp cells are all empty is a series without an index. An empty or
// "NaN" power cell is a missing reading. A header row is recognised by a
// non-numeric power cell.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/disaggregate"
)

func ReadSeries(path string) (disaggregate.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return disaggregate.Series{}, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	s, err := DecodeSeries(f)
	if err != nil {
		return disaggregate.Series{}, fmt.Errorf("dataset: %s: %w", path, err)
	}
	return s, nil
}

// DecodeSeries parses CSV rows of timestamp,power.
func DecodeSeries(r io.Reader) (disaggregate.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var (
		s         disaggregate.Series
		unstamped int
	)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return disaggregate.Series{}, err
		}

		power, perr := parsePower(rec[1])
		if perr != nil {
			if line == 1 {
				continue
			}
			return disaggregate.Series{}, fmt.Errorf("line %d: %w", line, perr)
		}
		s.Values = append(s.Values, power)
		if strings.TrimSpace(rec[0]) == "" {
			unstamped++
			continue
		}
		if unstamped > 0 {
			return disaggregate.Series{}, fmt.Errorf("line %d: timestamp after rows without one", line)
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return disaggregate.Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		s.Index = append(s.Index, ts)
	}
	if unstamped > 0 && len(s.Index) > 0 {
		return disaggregate.Series{}, errors.New("rows without a timestamp after stamped rows")
	}
	return s, nil
}

func parsePower(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

func parseTimestamp(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	if ts, err := time.Parse(time.RFC3339, cell); err == nil {
		return ts, nil
	}
	secs, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither RFC 3339 nor Unix seconds", cell)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// ReadTrainDir loads one appliance per *.csv file in dir, named after the
// file. Files are read in name order so the appliance order is stable.
func ReadTrainDir(dir string) ([]disaggregate.ApplianceTrain, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	sort.Strings(paths)

	trains := make([]disaggregate.ApplianceTrain, 0, len(paths))
	for _, p := range paths {
		s, err := ReadSeries(p)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		log.WithFields(log.Fields{
			"APPLIANCE": name,
			"SAMPLES":   s.Len(),
		}).Debug("DATASET: READ APPLIANCE")
		trains = append(trains, disaggregate.ApplianceTrain{
			Name:   name,
			Chunks: [][]float64{s.Values},
		})
	}
	return trains, nil
}

func WriteTable(path string, t *disaggregate.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	if err := EncodeTable(f, t); err != nil {
		f.Close()
		return fmt.Errorf("dataset: %s: %w", path, err)
	}
	return f.Close()
}

// EncodeTable writes a header of timestamp and appliance names followed by
// one row per prediction. Without an index the timestamp cells are empty.
func EncodeTable(w io.Writer, t *disaggregate.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"timestamp"}, t.Columns...)); err != nil {
		return err
	}

	row := make([]string, len(t.Columns)+1)
	for i := range t.Rows() {
		row[0] = ""
		if t.Index != nil {
			row[0] = t.Index[i].Format(time.RFC3339Nano)
		}
		for j, c := range t.Columns {
			row[j+1] = strconv.FormatFloat(t.Power[c][i], 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeries writes s in the format ReadSeries accepts.
func WriteSeries(path string, s disaggregate.Series) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"timestamp", "power"}); err != nil {
		f.Close()
		return fmt.Errorf("dataset: %s: %w", path, err)
	}
	for i, v := range s.Values {
		var ts string
		if s.Index != nil {
			ts = s.Index[i].Format(time.RFC3339Nano)
		}
		if err := cw.Write([]string{ts, strconv.FormatFloat(v, 'f', -1, 64)}); err != nil {
			f.Close()
			return fmt.Errorf("dataset: %s: %w", path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("dataset: %s: %w", path, err)
	}
	return f.Close()
}
