package itembank

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/adaptiq/internal/irt"
)

// FormatVersion is the newest item bank format this build understands.
// Documents with the same major version and an equal or older minor are
// accepted.
const FormatVersion = "v1.1.0"

// ErrUnsupportedFormat is returned for documents written for another format.
var ErrUnsupportedFormat = errors.New("unsupported item bank format")

var validate = validator.New()

type document struct {
	Format string    `yaml:"format"`
	Items  []docItem `yaml:"items"`
}

type docItem struct {
	ID          string   `yaml:"id"`
	Subject     string   `yaml:"subject"`
	Grade       string   `yaml:"grade"`
	Skill       string   `yaml:"skill"`
	ContentArea string   `yaml:"content_area"`
	B           float64  `yaml:"b"`
	A           float64  `yaml:"a"`
	C           *float64 `yaml:"c"`
	D           *float64 `yaml:"d"`
}

// Parse decodes and validates a YAML item bank document. It returns the
// document format version and the entries.
func Parse(data []byte) (string, []Entry, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return "", nil, fmt.Errorf("decode item bank: %w", err)
	}
	if err := ValidateDocument(raw); err != nil {
		return "", nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("decode item bank: %w", err)
	}
	if err := checkFormat(doc.Format); err != nil {
		return "", nil, err
	}

	entries := make([]Entry, 0, len(doc.Items))
	seen := make(map[string]bool, len(doc.Items))
	var errs []error
	for i, it := range doc.Items {
		e := it.entry()
		if seen[e.Params.ID] {
			errs = append(errs, fmt.Errorf("item %d: duplicate id %q", i, e.Params.ID))
			continue
		}
		seen[e.Params.ID] = true
		if err := Validate(e); err != nil {
			errs = append(errs, fmt.Errorf("item %d (%s): %w", i, e.Params.ID, err))
			continue
		}
		entries = append(entries, e)
	}
	if len(errs) > 0 {
		return "", nil, errors.Join(errs...)
	}
	return doc.Format, entries, nil
}

// LoadFile reads and parses the document at path.
func LoadFile(path string) (string, []Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read item bank: %w", err)
	}
	return Parse(data)
}

// LoadFile replaces the bank contents with the document at path. On error
// the current contents are kept.
func (b *Bank) LoadFile(path string) error {
	version, entries, err := LoadFile(path)
	if err != nil {
		return err
	}
	b.Replace(version, entries)
	return nil
}

// Validate checks one entry's calibration ranges and classification.
func Validate(e Entry) error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}
	return nil
}

func checkFormat(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedFormat, v)
	}
	if semver.Major(v) != semver.Major(FormatVersion) || semver.Compare(v, FormatVersion) > 0 {
		return fmt.Errorf("%w: %s (supported up to %s)", ErrUnsupportedFormat, v, FormatVersion)
	}
	return nil
}

func (it docItem) entry() Entry {
	p := irt.NewItem(it.ID, it.B, it.A)
	if it.C != nil {
		p.Guessing = *it.C
	}
	if it.D != nil {
		p.UpperAsymptote = *it.D
	}
	return Entry{
		Params:      p,
		Subject:     it.Subject,
		Grade:       it.Grade,
		Skill:       it.Skill,
		ContentArea: it.ContentArea,
	}
}
