package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/anishjain94/db-optimizer/pkg/models"
)

// How much of the sample data makes it into the prompt. Generation only
// needs a feel for the values, not the full rows.
const (
	maxSampleRowsPerTable = 3
	maxSampleValueLen     = 48
)

// BuildSQLGenerationPrompt renders the schema snapshot and the user's
// question into the generation prompt. The schema section lists every table
// with its columns, keys, and a few sample rows so the model grounds itself
// in names and value shapes instead of inventing them.
func BuildSQLGenerationPrompt(naturalQuery string, schemaCtx *models.SchemaContext) string {
	var prompt strings.Builder

	prompt.WriteString("# PostgreSQL Query Generation\n\n")
	prompt.WriteString("Convert the following natural language query to PostgreSQL SQL.\n\n")

	prompt.WriteString("## Database Schema\n\n")
	for _, name := range schemaCtx.TableNames() {
		table := schemaCtx.Tables[name]
		writeTableSection(&prompt, &table, schemaCtx.Relationships[name], schemaCtx.SampleData[name])
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Use only the tables and columns listed above.\n")
	prompt.WriteString("- Generate exactly one SELECT statement. Never modify data.\n")
	prompt.WriteString("- Do not include comments or multiple statements.\n\n")

	prompt.WriteString("## Query\n\n")
	prompt.WriteString(fmt.Sprintf("%q\n\n", naturalQuery))
	prompt.WriteString("Return ONLY the SQL query without any explanation or additional text.\n")

	return prompt.String()
}

func writeTableSection(prompt *strings.Builder, table *models.TableInfo, edges []models.RelationshipEdge, samples []map[string]any) {
	if table.RowCount >= 0 {
		prompt.WriteString(fmt.Sprintf("### %s (~%d rows)\n", table.Name, table.RowCount))
	} else {
		prompt.WriteString(fmt.Sprintf("### %s\n", table.Name))
	}

	prompt.WriteString("Columns:\n")
	for _, colName := range table.ColumnNames() {
		col := table.Columns[colName]
		flags := ""
		if col.IsPrimaryKey {
			flags += " [PK]"
		}
		if !col.Nullable {
			flags += " (not null)"
		}
		prompt.WriteString(fmt.Sprintf("- %s: %s%s\n", col.Name, col.DataType, flags))
	}

	for _, fk := range table.ForeignKeys {
		prompt.WriteString(fmt.Sprintf("Foreign Key: %s → %s.%s\n",
			strings.Join(fk.ConstrainedColumns, ", "),
			fk.ReferredTable,
			strings.Join(fk.ReferredColumns, ", ")))
	}

	for _, edge := range edges {
		if edge.Kind == models.RelationshipReferencedBy {
			prompt.WriteString(fmt.Sprintf("Referenced by: %s (%s)\n",
				edge.Table, strings.Join(edge.Columns, ", ")))
		}
	}

	if len(samples) > 0 {
		prompt.WriteString("Sample rows:\n")
		for i, row := range samples {
			if i == maxSampleRowsPerTable {
				break
			}
			prompt.WriteString(fmt.Sprintf("- %s\n", formatSampleRow(row)))
		}
	}

	prompt.WriteString("\n")
}

// formatSampleRow renders one row as sorted key=value pairs with long
// values truncated.
func formatSampleRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := fmt.Sprintf("%v", row[key])
		if runes := []rune(value); len(runes) > maxSampleValueLen {
			value = string(runes[:maxSampleValueLen]) + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%s", key, value))
	}
	return strings.Join(parts, ", ")
}
