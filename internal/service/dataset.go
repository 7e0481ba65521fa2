// dataset.go — валидация формы CSV-датасета перед отправкой worker.
// Лимиты строк и колонок заданы конфигурацией деплоя с жёсткими
// ограничениями памяти (AML_MAX_DATASET_ROWS, AML_MAX_DATASET_COLUMNS).
package service

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// DatasetShape — форма провалидированного датасета.
type DatasetShape struct {
	// Rows — количество строк данных (без заголовка)
	Rows int
	// Columns — количество колонок
	Columns int
	// Header — имена колонок из первой строки
	Header []string
}

// HasColumn проверяет наличие колонки в датасете.
func (s *DatasetShape) HasColumn(name string) bool {
	for _, col := range s.Header {
		if col == name {
			return true
		}
	}
	return false
}

// ValidateDataset читает CSV и проверяет форму против лимитов.
// Возвращает типизированную ошибку сервисного слоя при нарушении.
func ValidateDataset(r io.Reader, maxRows, maxColumns int) (*DatasetShape, error) {
	reader := csv.NewReader(r)
	// Количество колонок проверяем сами, чтобы вернуть понятную ошибку
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, NewValidationError("датасет пуст")
	}
	if err != nil {
		return nil, NewValidationError("некорректный CSV: %v", err)
	}

	columns := len(header)
	if columns > maxColumns {
		return nil, NewDatasetTooLargeError(
			"датасет содержит %d колонок, лимит %d", columns, maxColumns)
	}

	cleanHeader := make([]string, columns)
	for i, col := range header {
		cleanHeader[i] = strings.TrimSpace(col)
	}

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewValidationError("некорректный CSV в строке %d: %v", rows+2, err)
		}
		if len(record) != columns {
			return nil, NewValidationError(
				"строка %d содержит %d полей вместо %d", rows+2, len(record), columns)
		}
		rows++
		if rows > maxRows {
			return nil, NewDatasetTooLargeError(
				"датасет содержит более %d строк", maxRows)
		}
	}

	if rows == 0 {
		return nil, NewValidationError("датасет не содержит строк данных")
	}

	return &DatasetShape{Rows: rows, Columns: columns, Header: cleanHeader}, nil
}
