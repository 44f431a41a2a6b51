package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"hpi-forecast/models"
)

//go:embed sources.yaml
var defaultSources []byte

// Sources describes every input the pipeline reads and how raw records map
// onto panel columns.
type Sources struct {
	InputDir string          `yaml:"input_dir" default:"Data/Original_CSVs"`
	Required []string        `yaml:"required" validate:"dive,column"`
	CSV      []CSVSource     `yaml:"csv" validate:"dive"`
	Derived  []DerivedColumn `yaml:"derived" validate:"dive"`
	Valet    ValetSource     `yaml:"valet"`
}

type CSVSource struct {
	Name        string            `yaml:"name" validate:"required"`
	File        string            `yaml:"file" validate:"required"`
	DateColumn  string            `yaml:"date_column" default:"REF_DATE"`
	ValueColumn string            `yaml:"value_column" default:"VALUE"`
	Frequency   string            `yaml:"frequency" default:"monthly" validate:"oneof=monthly annual"`
	Filters     map[string]string `yaml:"filters"`
	Series      []SeriesMapping   `yaml:"series" validate:"required,min=1,dive"`
}

// SeriesMapping routes rows that match every Match entry into Column.
type SeriesMapping struct {
	Column string            `yaml:"column" validate:"required,column"`
	Match  map[string]string `yaml:"match"`
}

// DerivedColumn is Numerator / Denominator * Scale, computed per month.
type DerivedColumn struct {
	Column      string  `yaml:"column" validate:"required,column"`
	Numerator   string  `yaml:"numerator" validate:"required,column"`
	Denominator string  `yaml:"denominator" validate:"required,column"`
	Scale       float64 `yaml:"scale" default:"1"`
}

type ValetSource struct {
	BaseURL   string        `yaml:"base_url" default:"https://www.bankofcanada.ca/valet" validate:"required,url"`
	StartDate string        `yaml:"start_date" default:"1900-01-01" validate:"datetime=2006-01-02"`
	Timeout   time.Duration `yaml:"timeout" default:"30s"`
	Retries   int           `yaml:"retries" default:"3" validate:"gte=0"`
	Series    []ValetSeries `yaml:"series" validate:"dive"`
}

type ValetSeries struct {
	ID     string `yaml:"id" validate:"required"`
	Column string `yaml:"column" validate:"required,column"`
}

// LoadSources reads source definitions from path, or from the built-in
// definitions when path is empty.
func LoadSources(path string) (*Sources, error) {
	data := defaultSources
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sources %s: %w", path, err)
		}
		data = b
	}
	return ParseSources(data)
}

func ParseSources(data []byte) (*Sources, error) {
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if err := defaults.Set(&s); err != nil {
		return nil, fmt.Errorf("apply source defaults: %w", err)
	}
	for i := range s.CSV {
		if err := defaults.Set(&s.CSV[i]); err != nil {
			return nil, fmt.Errorf("apply defaults to %s: %w", s.CSV[i].Name, err)
		}
	}
	for i := range s.Derived {
		if err := defaults.Set(&s.Derived[i]); err != nil {
			return nil, fmt.Errorf("apply defaults to %s: %w", s.Derived[i].Column, err)
		}
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("validate sources: %w", err)
	}
	return &s, nil
}

// Columns returns every panel column some source or derivation produces.
func (s *Sources) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, src := range s.CSV {
		for _, m := range src.Series {
			add(m.Column)
		}
	}
	for _, d := range s.Derived {
		add(d.Column)
	}
	for _, v := range s.Valet.Series {
		add(v.Column)
	}
	return cols
}

func validColumn(fl validator.FieldLevel) bool {
	return models.IsColumn(fl.Field().String())
}
