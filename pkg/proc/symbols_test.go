package proc

import (
	"reflect"
	"testing"
)

func TestSymbolTable(t *testing.T) {
	st := NewSymbolTable()
	st.Add(&Function{Name: "main", Entry: 0x2000, End: 0x2100})
	st.Add(&Function{Name: "__signalstub", Entry: 0x1000, End: 0x1040, Module: "libc.so.5"})
	st.Add(&Function{Name: "SignalReturn", Entry: 0x1040})
	st.Add(&Function{Name: "signal_handler", Entry: 0x3000, End: 0x3010})

	for _, tc := range []struct {
		pc   uint64
		want string
	}{
		{0x0fff, ""},
		{0x1000, "__signalstub"},
		{0x103f, "__signalstub"},
		{0x1040, "SignalReturn"},
		{0x1fff, "SignalReturn"}, // no size, extends to the next symbol
		{0x20ff, "main"},
		{0x2100, ""},
		{0x3010, ""},
	} {
		name, _, ok := st.FunctionContaining(tc.pc)
		if name != tc.want || ok != (tc.want != "") {
			t.Errorf("FunctionContaining(%#x) = %q %v, expected %q", tc.pc, name, ok, tc.want)
		}
	}

	if fn := st.LookupFunc("__signalstub"); fn == nil || fn.Entry != 0x1000 || fn.Module != "libc.so.5" {
		t.Errorf("LookupFunc(__signalstub) = %v", fn)
	}
	if fn := st.LookupFunc("signal"); fn != nil {
		t.Errorf("LookupFunc(signal) = %v", fn)
	}
	if got := st.FunctionsWithPrefix("sig"); !reflect.DeepEqual(got, []string{"signal_handler"}) {
		t.Errorf("FunctionsWithPrefix(sig) = %v", got)
	}
	if got := st.FunctionsWithPrefix(""); len(got) != 4 {
		t.Errorf("FunctionsWithPrefix() = %v", got)
	}
}
