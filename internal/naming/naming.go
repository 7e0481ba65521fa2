// Пакет naming — генерация и разбор имён файлов артефактов.
//
// Имя файла — единственный ключ связи между файловым хранилищем
// и документами метаданных, поэтому формат фиксирован:
//
//	{user}_{label}_{YYYYMMDD}_{HHMMSS}_{uuid8}.{ext}       — модели и EDA-отчёты
//	{user}_{model}_{plotType}_{YYYYMMDD}_{HHMMSS}_{uuid8}.png — графики
//	temp_{user}_{label}_{YYYYMMDD}_{HHMMSS}_{uuid8}{ext}   — временные загрузки
//
// Идентификатор пользователя всегда первый токен и не содержит
// подчёркиваний, поэтому извлекается однозначно.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TimestampLayout — формат временной метки в имени файла (UTC, секундная точность).
const TimestampLayout = "20060102_150405"

// DefaultLabel подставляется вместо пустого после санитизации ярлыка.
const DefaultLabel = "dataset"

// maxLabelLen ограничивает длину ярлыка, чтобы общая длина имени
// файла не упиралась в лимиты файловой системы.
const maxLabelLen = 50

// Parsed — результат разбора имени файла. Если имя не соответствует
// формату, заполнено только поле Filename (деградированный разбор).
type Parsed struct {
	UserID   string
	Label    string
	PlotType string
	Time     time.Time
	UniqueID string
	Filename string
}

// Sanitize приводит ярлык к безопасному для файловой системы виду:
// небезопасные символы и пробелы заменяются подчёркиванием, серии
// подчёркиваний схлопываются, по краям обрезаются. Пустой результат
// заменяется на DefaultLabel, длина ограничена 50 символами.
func Sanitize(label string) string {
	// Расширение не часть ярлыка
	label = strings.TrimSuffix(label, filepath.Ext(label))

	var b strings.Builder
	for _, r := range label {
		switch {
		case r == '<' || r == '>' || r == ':' || r == '"' || r == '/' ||
			r == '\\' || r == '|' || r == '?' || r == '*':
			b.WriteRune('_')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	// Схлопываем серии подчёркиваний
	s := b.String()
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")

	if s == "" {
		return DefaultLabel
	}
	if len(s) > maxLabelLen {
		// Срез по границе руны: байтовый срез может разрезать
		// многобайтовый символ и оставить невалидный UTF-8
		cut := maxLabelLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], "_")
	}
	return s
}

// UniqueID возвращает короткий случайный идентификатор (8 символов UUID).
func UniqueID() string {
	return uuid.New().String()[:8]
}

// ModelFilename генерирует имя файла для сериализованной модели (.pkl).
func ModelFilename(userID, datasetName string) string {
	return stampedName(userID, Sanitize(datasetName), ".pkl")
}

// EDAFilename генерирует имя файла для EDA-отчёта (.html).
func EDAFilename(userID, datasetName string) string {
	return stampedName(userID, Sanitize(datasetName), ".html")
}

// PlotFilename генерирует имя файла для графика оценки модели (.png).
func PlotFilename(userID, modelName, plotType string) string {
	label := Sanitize(modelName) + "_" + Sanitize(plotType)
	return stampedName(userID, label, ".png")
}

// TempFilename генерирует имя для временной загрузки. Префикс temp_
// позволяет отличать незавершённые загрузки при очистке, расширение
// исходного файла сохраняется.
func TempFilename(userID, originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	return "temp_" + stampedName(userID, Sanitize(originalFilename), ext)
}

func stampedName(userID, label, ext string) string {
	ts := time.Now().UTC().Format(TimestampLayout)
	return fmt.Sprintf("%s_%s_%s_%s%s", userID, label, ts, UniqueID(), ext)
}

// ExtractUserID извлекает идентификатор владельца (первый токен) из имени
// файла. Префикс temp_ временных загрузок пропускается. Возвращает пустую
// строку, если имя не соответствует формату.
func ExtractUserID(filename string) string {
	name := strings.TrimPrefix(filepath.Base(filename), "temp_")
	parts := strings.Split(name, "_")
	if len(parts) < 2 || parts[0] == "" {
		return ""
	}
	return parts[0]
}

// ExtractTimestamp извлекает временную метку из имени файла.
// Возвращает нулевое время, если метка отсутствует или не разбирается.
func ExtractTimestamp(filename string) time.Time {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	parts := strings.Split(name, "_")
	// Метка занимает два токена: дата и время
	for i := 0; i+1 < len(parts); i++ {
		if len(parts[i]) != 8 || len(parts[i+1]) != 6 {
			continue
		}
		t, err := time.Parse(TimestampLayout, parts[i]+"_"+parts[i+1])
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseModel разбирает имя файла модели или EDA-отчёта.
// Формат: {user}_{label}_{YYYYMMDD}_{HHMMSS}_{uuid8}.{ext}.
// Ярлык может содержать подчёркивания, поэтому разбор идёт с конца.
// На некорректном имени возвращается деградированный результат
// с заполненным только Filename, ошибки не возникает.
func ParseModel(filename string) Parsed {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(name, "_")
	if len(parts) < 5 {
		return Parsed{Filename: base}
	}

	ts, err := time.Parse(TimestampLayout, parts[len(parts)-3]+"_"+parts[len(parts)-2])
	if err != nil {
		return Parsed{Filename: base}
	}

	return Parsed{
		UserID:   parts[0],
		Label:    strings.Join(parts[1:len(parts)-3], "_"),
		Time:     ts,
		UniqueID: parts[len(parts)-1],
		Filename: base,
	}
}

// ParseEDA разбирает имя файла EDA-отчёта. Формат совпадает с моделью.
func ParseEDA(filename string) Parsed {
	return ParseModel(filename)
}

// ParsePlot разбирает имя файла графика.
// Формат: {user}_{model}_{plotType}_{YYYYMMDD}_{HHMMSS}_{uuid8}.png.
// Тип графика — последний токен перед временной меткой.
func ParsePlot(filename string) Parsed {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(name, "_")
	if len(parts) < 6 {
		return Parsed{Filename: base}
	}

	ts, err := time.Parse(TimestampLayout, parts[len(parts)-3]+"_"+parts[len(parts)-2])
	if err != nil {
		return Parsed{Filename: base}
	}

	return Parsed{
		UserID:   parts[0],
		Label:    strings.Join(parts[1:len(parts)-4], "_"),
		PlotType: parts[len(parts)-4],
		Time:     ts,
		UniqueID: parts[len(parts)-1],
		Filename: base,
	}
}

// IsValidFilename проверяет, допустимо ли имя файла для файловой системы.
func IsValidFilename(filename string) bool {
	if filename == "" || len(filename) > 255 {
		return false
	}
	return !strings.ContainsAny(filename, `<>:"/\|?*`)
}
