// Package regnum defines the abstract register numbers used to index the
// register cache of each supported QNX Neutrino architecture.
//
// The numbering follows the order the debugger presents registers in, which
// is not the order the operating system stores them in a context structure:
// the mapping between the two lives in the register layouts of package proc.
package regnum

import (
	"fmt"
	"strings"
)

// table maps register numbers to names for one architecture.
type table []string

func (t table) name(num int) string {
	if num >= 0 && num < len(t) && t[num] != "" {
		return t[num]
	}
	return fmt.Sprintf("unknown%d", num)
}

func (t table) nameToNum() map[string]int {
	r := make(map[string]int, len(t))
	for num, name := range t {
		if name != "" {
			r[strings.ToLower(name)] = num
		}
	}
	return r
}

// seq names n consecutive registers starting at first, numbering the names
// from start.
func seq(t table, first, n, start int, format string) {
	for i := 0; i < n; i++ {
		t[first+i] = fmt.Sprintf(format, start+i)
	}
}

// addSTAliases lets x87 stack registers be named without parenthesis.
func addSTAliases(r map[string]int, st0 int) {
	for i := 0; i < 8; i++ {
		r[fmt.Sprintf("st%d", i)] = st0 + i
	}
}
