// Package intake turns batch files and queue databases into enrichment
// requests.
package intake

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/profile-cli/internal/model"
)

// Defaults fills fields a row leaves empty.
type Defaults struct {
	ProjectID string
	Mask      model.StageMask // zero enables every stage
}

func (d Defaults) mask() model.StageMask {
	if d.Mask.Empty() {
		return model.AllStages
	}
	return d.Mask
}

// LoadFile reads requests from a .csv, .xlsx or .yaml/.yml file.
func LoadFile(path string, d Defaults) ([]model.EnrichmentRequest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "intake: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f, d)
	case ".xlsx":
		return readXLSX(path, d)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "intake: read yaml")
		}
		return ParseYAML(data, d)
	default:
		return nil, eris.Errorf("intake: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV reads rows under a header naming at least name and company.
// Optional columns: project, stages, selected_image.
func ReadCSV(r io.Reader, d Defaults) ([]model.EnrichmentRequest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "intake: read csv")
	}
	return fromRows(rows, d)
}

func readXLSX(path string, d Defaults) ([]model.EnrichmentRequest, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "intake: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("intake: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromRows(rows, d)
}

type columns struct {
	name, company, project, stages, image int
}

func headerColumns(header []string) (columns, error) {
	cols := columns{name: -1, company: -1, project: -1, stages: -1, image: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "entity_name":
			cols.name = i
		case "company", "entity_company":
			cols.company = i
		case "project", "project_id":
			cols.project = i
		case "stages":
			cols.stages = i
		case "selected_image":
			cols.image = i
		}
	}
	if cols.name < 0 || cols.company < 0 {
		return cols, eris.Errorf("intake: header must include name and company, got %v", header)
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func fromRows(rows [][]string, d Defaults) ([]model.EnrichmentRequest, error) {
	if len(rows) == 0 {
		return nil, eris.New("intake: file is empty")
	}
	cols, err := headerColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var reqs []model.EnrichmentRequest
	for i, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		req, err := build(cell(row, cols.name), cell(row, cols.company), cell(row, cols.project), cell(row, cols.stages), d)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: row %d", i+2)
		}
		req.SelectedImage = cell(row, cols.image)
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func build(name, company, project, stages string, d Defaults) (model.EnrichmentRequest, error) {
	req := model.EnrichmentRequest{
		ProjectID: project,
		Name:      name,
		Company:   company,
		Mask:      d.mask(),
	}
	if req.ProjectID == "" {
		req.ProjectID = d.ProjectID
	}
	if stages != "" {
		m, err := model.ParseStageMask(stages)
		if err != nil {
			return req, err
		}
		req.Mask = m
	}
	return req, nil
}

type yamlBatch struct {
	ProjectID string      `yaml:"project_id"`
	Stages    string      `yaml:"stages"`
	Entities  []yamlEntry `yaml:"entities"`
}

type yamlEntry struct {
	Name          string `yaml:"name"`
	Company       string `yaml:"company"`
	ProjectID     string `yaml:"project_id"`
	Stages        string `yaml:"stages"`
	SelectedImage string `yaml:"selected_image"`
}

// ParseYAML reads an `entities:` document. Top-level project_id and stages
// override the defaults for every entry.
func ParseYAML(data []byte, d Defaults) ([]model.EnrichmentRequest, error) {
	var batch yamlBatch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, eris.Wrap(err, "intake: parse yaml")
	}
	if batch.ProjectID != "" {
		d.ProjectID = batch.ProjectID
	}
	if batch.Stages != "" {
		m, err := model.ParseStageMask(batch.Stages)
		if err != nil {
			return nil, eris.Wrap(err, "intake: yaml stages")
		}
		d.Mask = m
	}

	reqs := make([]model.EnrichmentRequest, 0, len(batch.Entities))
	for i, e := range batch.Entities {
		req, err := build(strings.TrimSpace(e.Name), strings.TrimSpace(e.Company), e.ProjectID, e.Stages, d)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: entity %d", i)
		}
		req.SelectedImage = e.SelectedImage
		reqs = append(reqs, req)
	}
	return reqs, nil
}
