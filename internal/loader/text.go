package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// TextLoader treats the whole source body as one document. It backs txt
// sources and is the fallback for the generic file type.
type TextLoader struct{}

func (TextLoader) Load(ctx context.Context, source domain.Source, content []byte) ([]domain.Document, error) {
	if len(content) == 0 {
		return nil, nil
	}
	return []domain.Document{{PageContent: string(content)}}, nil
}

// CSVLoader emits one document per data row, rendering each row as
// "header: value" lines so column meaning survives into the embedding.
type CSVLoader struct{}

func (CSVLoader) Load(ctx context.Context, source domain.Source, content []byte) ([]domain.Document, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	docs := make([]domain.Document, 0, len(rows)-1)
	for rowNum, row := range rows[1:] {
		var b strings.Builder
		for i, field := range row {
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				name = strings.TrimSpace(header[i])
			}
			fmt.Fprintf(&b, "%s: %s\n", name, strings.TrimSpace(field))
		}
		docs = append(docs, domain.Document{
			PageContent: b.String(),
			Metadata:    map[string]any{"row": rowNum + 1},
		})
	}
	return docs, nil
}
