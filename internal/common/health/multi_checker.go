package health

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// MultiChecker aggregates the checkers of each backing store under a name, so
// a failing health probe says which dependency is down.
type MultiChecker struct {
	checkers map[string]Checker
}

func NewMultiChecker() *MultiChecker {
	return &MultiChecker{
		checkers: map[string]Checker{},
	}
}

func (mc *MultiChecker) Add(name string, checker Checker) {
	mc.checkers[name] = checker
}

func (mc *MultiChecker) Check() error {
	names := make([]string, 0, len(mc.checkers))
	for name := range mc.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	errorStrings := []string{}
	for _, name := range names {
		if err := mc.checkers[name].Check(); err != nil {
			errorStrings = append(errorStrings, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(errorStrings) == 0 {
		return nil
	}
	return errors.New(strings.Join(errorStrings, "\n"))
}
