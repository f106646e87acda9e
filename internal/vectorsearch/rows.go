package vectorsearch

// ExtractRows normalizes a query response into rows. Both the columnar
// data_array shape and the row_list shape are understood; anything else
// yields no rows.
func ExtractRows(response map[string]any) []map[string]any {
	result, ok := response["result"].(map[string]any)
	if !ok {
		return nil
	}

	if data, ok := result["data_array"].([]any); ok {
		columns := columnNames(result["columns"])
		if len(columns) == 0 {
			if manifest, ok := response["manifest"].(map[string]any); ok {
				columns = columnNames(manifest["columns"])
			}
		}
		rows := make([]map[string]any, 0, len(data))
		for _, entry := range data {
			values, _ := entry.([]any)
			row := make(map[string]any, len(columns))
			for i := 0; i < len(columns) && i < len(values); i++ {
				row[columns[i]] = values[i]
			}
			rows = append(rows, row)
		}
		return rows
	}

	if list, ok := result["row_list"].([]any); ok {
		rows := make([]map[string]any, 0, len(list))
		for _, entry := range list {
			if row, ok := entry.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
		return rows
	}
	return nil
}

// columnNames accepts ["a", "b"] as well as [{"name": "a"}, {"name": "b"}].
func columnNames(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}
