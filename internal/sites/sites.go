// Package sites loads the list of websites to scrape.
package sites

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// csvColumns are accepted header names for the site column, in preference order.
var csvColumns = []string{"site", "url", "domain", "website"}

// Load reads sites from path, choosing the format from its extension:
// .csv, .yaml/.yml, anything else is one site per line.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer f.Close()

	var out []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		out, err = ReadCSV(f)
	case ".yaml", ".yml":
		out, err = ReadYAML(f)
	default:
		out, err = ReadLines(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read sites file %s: %w", path, err)
	}
	return out, nil
}

// ReadLines reads one site per line. Blank lines and lines starting with #
// are skipped.
func ReadLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadCSV reads the first recognised site column of a CSV with a header row.
func ReadCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty csv")
	}
	col := headerColumn(rows[0])
	if col == -1 {
		return nil, fmt.Errorf("csv must contain one of the header columns %v", csvColumns)
	}
	var out []string
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if s := strings.TrimSpace(row[col]); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func headerColumn(header []string) int {
	for _, name := range csvColumns {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

type yamlSites struct {
	Websites []string `yaml:"websites"`
}

// ReadYAML accepts either a document with a websites list or a bare list.
func ReadYAML(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var list []string
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&list)
	case yaml.MappingNode:
		var doc yamlSites
		err = root.Decode(&doc)
		list = doc.Websites
	default:
		return nil, errors.New("yaml must be a list or contain a websites list")
	}
	if err != nil {
		return nil, fmt.Errorf("decode yaml sites: %w", err)
	}
	return Clean(list), nil
}

// Clean trims entries and drops blanks.
func Clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Resolve picks the run's sites: args first, then the sites file, then the
// configured list.
func Resolve(args []string, file string, configured []string) ([]string, error) {
	if list := Clean(args); len(list) > 0 {
		return list, nil
	}
	if file != "" {
		return Load(file)
	}
	return Clean(configured), nil
}
