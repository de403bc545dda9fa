package formatter

import (
	"fmt"
	"path"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

const fallbackRoot = "parley/"

// ContextHook adds the source file and line of the caller to each entry
type ContextHook struct {
	goModuleName string
}

// NewContextHook instantiate a new context hook
func NewContextHook() *ContextHook {
	return &ContextHook{goModuleName: moduleName() + "/"}
}

// Levels set the supported levels for this hook
func (hook ContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire extend with the source information the entry.Data
func (hook ContextHook) Fire(entry *logrus.Entry) error {
	if entry.Caller == nil {
		return nil
	}
	entry.Data["source"] = fmt.Sprintf("%s:%v", hook.parseSrc(entry.Caller.File), entry.Caller.Line)
	return nil
}

func moduleName() string {
	info, ok := debug.ReadBuildInfo()
	if ok && info.Main.Path != "" {
		return info.Main.Path
	}
	return "parley"
}

func (hook ContextHook) parseSrc(filePath string) string {
	if parts := strings.SplitAfter(filePath, hook.goModuleName); len(parts) > 1 {
		return parts[len(parts)-1]
	}

	// checkout outside of GOPATH
	if parts := strings.SplitAfter(filePath, fallbackRoot); len(parts) > 1 {
		return parts[len(parts)-1]
	}

	_, pkg := path.Split(path.Dir(filePath))
	return fmt.Sprintf("%s/%s", pkg, path.Base(filePath))
}
