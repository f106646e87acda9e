package genie

import (
	"bytes"
	"encoding/json"
)

// Result is the tabular view of a completed message. Exactly one of Error or
// the row data is meaningful.
type Result struct {
	Columns   []string         `json:"columns,omitempty"`
	Rows      []map[string]any `json:"data,omitempty"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	Error     string           `json:"error,omitempty"`
	// Raw is the undecodable payload when extraction failed structurally.
	Raw json.RawMessage `json:"raw_response,omitempty"`
}

// OK reports whether the result carries data rather than an error.
func (r Result) OK() bool {
	return r.Error == ""
}

const stateSucceeded = "SUCCEEDED"

type statementPayload struct {
	StatementResponse *struct {
		Status struct {
			State string `json:"state"`
		} `json:"status"`
		Manifest struct {
			Schema struct {
				Columns []struct {
					Name string `json:"name"`
				} `json:"columns"`
			} `json:"schema"`
		} `json:"manifest"`
		Result struct {
			DataArray [][]any `json:"data_array"`
			Truncated bool    `json:"truncated"`
		} `json:"result"`
	} `json:"statement_response"`
}

// Extract normalizes the statement payload of msg. It never fails: problems
// are reported through Result.Error and the result then carries no rows.
func Extract(msg *Message) Result {
	if !msg.HasResult() {
		return Result{Error: "no query result available"}
	}

	// Numbers stay json.Number so wide integers keep every digit.
	var payload statementPayload
	dec := json.NewDecoder(bytes.NewReader(msg.QueryResult))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Result{Error: "failed to extract data: " + err.Error(), Raw: cloneRaw(msg.QueryResult)}
	}
	if payload.StatementResponse == nil {
		return Result{Error: "query state: <missing>"}
	}
	statement := payload.StatementResponse
	if state := statement.Status.State; state != stateSucceeded {
		if state == "" {
			state = "<missing>"
		}
		return Result{Error: "query state: " + state}
	}

	columns := make([]string, 0, len(statement.Manifest.Schema.Columns))
	for _, col := range statement.Manifest.Schema.Columns {
		columns = append(columns, col.Name)
	}

	rows := make([]map[string]any, 0, len(statement.Result.DataArray))
	for _, values := range statement.Result.DataArray {
		width := min(len(columns), len(values))
		record := make(map[string]any, width)
		for i := 0; i < width; i++ {
			record[columns[i]] = values[i]
		}
		rows = append(rows, record)
	}

	return Result{
		Columns:   columns,
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: statement.Result.Truncated,
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), raw...)
}
