package ingest

import (
	"fmt"
	"time"
)

var russianMonths = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// DefaultTitle builds the fallback document title for uploads that omit one,
// formatted for the configured primary language.
func DefaultTitle(lang string, now time.Time) string {
	if lang == "ru" {
		return fmt.Sprintf("Документ от %d %s %d", now.Day(), russianMonths[now.Month()-1], now.Year())
	}
	return fmt.Sprintf("Document of %d %s %d", now.Day(), now.Month().String(), now.Year())
}
