package storage

import (
	"fmt"
	"regexp"
	"strings"
)

// Metric selects how vectors are compared.
type Metric string

const (
	// MetricCosine scores by cosine similarity in [-1, 1].
	MetricCosine Metric = "cosine"
	// MetricDot scores by raw dot product.
	MetricDot Metric = "dot"
	// MetricEuclidean scores by 1/(1+d) where d is the euclidean distance.
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric accepts a metric name case-insensitively. Empty means cosine.
func ParseMetric(name string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricDot, MetricEuclidean:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidSchema, name)
	}
}

// Schema names where records live and how they are compared.
// It is supplied at startup and treated as opaque configuration.
type Schema struct {
	VectorTable       string `yaml:"vector_table"`
	ConversationTable string `yaml:"conversation_table"`
	Dimension         int    `yaml:"dimension"`
	Metric            Metric `yaml:"metric"`
}

// Default table names.
const (
	DefaultVectorTable       = "confluence_pages"
	DefaultConversationTable = "conversation_history"
)

// DefaultSchema returns the default table names, 1024 dimensions and cosine.
func DefaultSchema() Schema {
	return Schema{
		VectorTable:       DefaultVectorTable,
		ConversationTable: DefaultConversationTable,
		Dimension:         1024,
		Metric:            MetricCosine,
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name is safe to use as a table name or key prefix.
func ValidIdentifier(name string) bool {
	return identifier.MatchString(name)
}

// Validate checks table names, dimension and metric.
func (s Schema) Validate() error {
	if !ValidIdentifier(s.VectorTable) {
		return fmt.Errorf("%w: vector table %q", ErrInvalidSchema, s.VectorTable)
	}
	if !ValidIdentifier(s.ConversationTable) {
		return fmt.Errorf("%w: conversation table %q", ErrInvalidSchema, s.ConversationTable)
	}
	if s.VectorTable == s.ConversationTable {
		return fmt.Errorf("%w: vector and conversation tables must differ", ErrInvalidSchema)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be greater than 0", ErrInvalidSchema)
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return err
	}
	return nil
}
