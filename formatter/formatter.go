package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

var levelDesc = []string{"PANC", "FATL", "ERRO", "WARN", "INFO", "DEBG", "TRAC"}

// TextFormatter formats logs into text with included source code's path
type TextFormatter struct {
	timestampFormat string
}

// NewTextFormatter create new TextFormatter instance
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		timestampFormat: timestampFormat,
	}
}

// Format renders a single log entry. Fields are sorted so a check cycle reads the same in every line.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "source" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields string
	if len(keys) > 0 {
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s: %v", k, entry.Data[k]))
		}
		fields = fmt.Sprintf("[%s] ", strings.Join(pairs, ", "))
	}

	var source string
	if src, ok := entry.Data["source"]; ok {
		source = fmt.Sprintf("%v: ", src)
	}

	return []byte(fmt.Sprintf("%s %s %s%s%s\n", entry.Time.Format(f.timestampFormat), parseLevel(entry.Level), fields, source, entry.Message)), nil
}

func parseLevel(level logrus.Level) string {
	if int(level) >= len(levelDesc) {
		return ""
	}
	return levelDesc[level]
}

// SetTextFormatter installs TextFormatter and the caller hook on logger
func SetTextFormatter(logger *logrus.Logger) {
	logger.Formatter = NewTextFormatter()
	logger.ReportCaller = true
	logger.AddHook(NewContextHook())
}
