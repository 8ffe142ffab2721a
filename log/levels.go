package log

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// LevelsFrom returns the logrus levels at or above the given severity,
// ordered from the most severe. It is meant for hooks that should fire
// for every entry the logger would emit at that level.
func LevelsFrom(level string) ([]logrus.Level, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %s", level) // specifically use a custom error
	}
	index := sort.Search(len(logrus.AllLevels), func(i int) bool {
		return logrus.AllLevels[i] > lvl
	})

	return logrus.AllLevels[:index], nil
}
